package filter

// healthTerms is the keyword-gate allow-list
var healthTerms = []string{
	// conditions and symptoms
	"symptom", "disease", "illness", "condition", "disorder", "syndrome",
	"infection", "virus", "bacteria", "cancer", "tumor", "diabetes", "hypertension",
	"asthma", "arthritis", "depression", "anxiety", "migraine", "headache", "fever",
	"pain", "ache", "injury", "wound", "fracture", "sprain", "strain", "allergy",
	"allergic", "rash", "eczema", "psoriasis", "pneumonia", "bronchitis", "flu",
	"cold", "cough", "sore throat", "nausea", "nauseous", "vomiting", "diarrhea",
	"constipation", "dizzy", "dizziness", "fatigue", "tired", "weakness", "weak",
	"swelling", "swollen", "inflammation", "bruise", "bleeding", "discharge",
	"breathe", "breathing", "breath", "faint", "unconscious", "lightheaded", "blackout",

	// anatomy
	"heart", "lung", "liver", "kidney", "brain", "stomach", "intestine", "bone",
	"muscle", "joint", "skin", "eye", "nose", "throat", "chest", "back",
	"neck", "shoulder", "arm", "leg", "hand", "foot", "head", "abdomen", "pelvis",

	// procedures and treatments
	"treatment", "therapy", "surgery", "operation", "procedure", "examination",
	"diagnosis", "medical test", "screening", "vaccination", "vaccine", "immunization",
	"medication", "medicine", "drug", "prescription", "dosage", "antibiotic",
	"painkiller", "insulin", "chemotherapy", "radiation", "rehabilitation",
	"recovery", "healing", "cure", "remedy",

	// professionals and facilities
	"doctor", "physician", "nurse", "surgeon", "specialist", "cardiologist",
	"dermatologist", "neurologist", "psychiatrist", "psychologist", "therapist",
	"pharmacist", "dentist", "optometrist", "hospital", "clinic", "emergency room",
	"pharmacy", "medical center", "healthcare", "health care",

	// general medical and wellness
	"medical", "clinical", "health", "wellness", "fitness", "nutrition",
	"diet", "exercise", "sleep", "stress", "blood pressure", "heart rate",
	"body temperature", "weight", "bmi", "cholesterol", "glucose", "blood sugar",
	"immune system", "metabolism", "hormone", "vitamin", "mineral", "supplement",
	"side effect", "adverse reaction", "contraindication",

	// emergencies
	"emergency", "urgent", "911", "ambulance", "first aid", "cpr", "choking",
	"seizure", "stroke", "heart attack", "overdose", "poisoning", "burn", "cut",
	"bite", "sting",

	// preventive care
	"prevention", "preventive", "checkup", "annual exam", "mammogram",
	"colonoscopy", "pap smear", "blood work", "x-ray", "mri", "ct scan", "ultrasound",
	"hygiene", "handwashing", "sanitizer", "mask", "social distancing", "quarantine",

	// women's health
	"pregnancy", "pregnant", "prenatal", "postnatal", "labor", "delivery", "birth",
	"contraception", "menstruation", "menopause", "gynecology", "obstetrics",

	// mental health
	"counseling", "meditation", "mindfulness", "mental", "emotional health",
	"bipolar", "schizophrenia", "ptsd", "adhd", "autism", "eating disorder",
	"substance abuse", "addiction",
}

// offDomainTerms are recorded on pre-check decisions for diagnostics only
var offDomainTerms = []string{
	"weather", "forecast", "sports", "football", "basketball", "soccer", "baseball",
	"recipe", "cooking", "movie", "music", "song", "celebrity", "stock", "bitcoin",
	"crypto", "invest", "finance", "politics", "election", "president", "travel",
	"vacation", "flight", "hotel", "programming", "javascript", "python", "code",
	"game", "homework", "capital of",
}

// refusalMarkers are phrases the policy prompt tells the backend to use when declining.
// Markers are matched after normalize, so they carry no apostrophes.
var refusalMarkers = []string{
	"sorry, i can only assist with healthcare-related queries",
	"i can only help with healthcare",
	"im designed to assist with healthcare",
	"please ask me about health",
}

// outOfScopeMarkers signal the backend answered an off-domain question anyway
var outOfScopeMarkers = []string{
	"dont have information about",
	"cant help with cooking",
	"cant help with weather",
	"cant help with entertainment",
	"cant help with technology",
	"cant help with travel",
	"cant help with sports",
	"cant help with politics",
	"cant help with finance",
	"thats not related to healthcare",
	"thats outside my healthcare expertise",
	"not a healthcare",
	"not healthcare-related",
	"outside of healthcare",
	"beyond healthcare",
	"unrelated to health",
	"not about health",
	"not medical",
}
