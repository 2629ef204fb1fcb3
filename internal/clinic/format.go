package clinic

import (
	"fmt"
	"strings"
)

func plural(kind Kind) string {
	if kind == KindPharmacy {
		return "pharmacies"
	}
	return string(kind) + "s"
}

func facilityTitle(kind Kind) string {
	switch kind {
	case KindDoctor:
		return "Medical practices"
	case KindHospital:
		return "Hospitals and medical centers"
	case KindPharmacy:
		return "Pharmacies"
	default:
		return "Dentists"
	}
}

func askForLocation() string {
	return "I'd be happy to help you find nearby healthcare facilities!\n\n" +
		"I need to know your location to provide accurate results. " +
		"Could you tell me your city, zip code, or general area?\n\n" +
		"Examples:\n" +
		"• Find hospitals in Chicago\n" +
		"• Show me clinics in 90210\n" +
		"• I need a doctor in New York, NY\n" +
		"• Find pharmacies in Los Angeles"
}

func missingLocation(kind Kind) string {
	p := plural(kind)
	return fmt.Sprintf("I understand you're looking for %s.\n\n"+
		"To help you find the best options, please include a location in your request, for example:\n"+
		"• Find %s in [your city]\n"+
		"• Show me %s near [zip code]\n\n"+
		"What location would you like me to search?", p, p, p)
}

func notFound(kind Kind, location string) string {
	return fmt.Sprintf("I couldn't find any %s near %s. The location may not have been recognized; "+
		"try being more specific (for example \"Springfield, IL\" instead of \"Springfield\"). "+
		"You can also search Google Maps directly or check your insurance provider's directory.",
		plural(kind), location)
}

func formatPlaces(places []Place, kind Kind, location string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s near %s\n\n", facilityTitle(kind), location)
	fmt.Fprintf(&b, "I found %d healthcare facilities for you:\n", len(places))

	for i, p := range places {
		fmt.Fprintf(&b, "\n%d. %s", i+1, p.Name)
		if p.Address != "" {
			fmt.Fprintf(&b, "\n   Address: %s", p.Address)
		}
		if p.Rating > 0 {
			fmt.Fprintf(&b, "\n   Rating: %.1f/5", p.Rating)
			if p.RatingCount > 0 {
				fmt.Fprintf(&b, " (%d reviews)", p.RatingCount)
			}
		}
		if p.OpenNow != nil {
			if *p.OpenNow {
				b.WriteString("\n   Open now")
			} else {
				b.WriteString("\n   Closed now")
			}
		}
	}

	b.WriteString("\n\nCall ahead to confirm hours and whether they accept your insurance. " +
		"For emergencies, call 911 or go to the nearest emergency room.")
	return b.String()
}
