package catalog

import (
	"github.com/shopspring/decimal"

	"mailinvoice/internal"
)

func service(name, diagnostic, description string, price int64, category string) entry {
	return entry{name: name, mapping: internal.ServiceMapping{
		Code:           DefaultServiceCode,
		DiagnosticCode: diagnostic,
		Description:    description,
		Price:          decimal.NewFromInt(price),
		Category:       category,
	}}
}

var builtinServices = []entry{
	service("Echocardiogram scan", "R93.1", "Echocardiogram scan", 2500, "diagnostic"),
	service("Prescription", "Z00.0", "Prescription", 420, "prescription"),
	service("Red Light Therapy", "88045", "Red Light Therapy Treatment", 700, "therapy"),
	service("InBody Analysis (Scan only)", "Z00.0", "InBody Analysis (Scan only)", 450, "analysis"),
	service("InBody Analysis (Full)", "Z00.0", "InBody Analysis (Full)", 1250, "analysis"),
	service("Blood Results", "Z00.0", "General Consultation (Blood Results)", 960, "consultation"),
	service("IV Drip", "Z76.89", "IV Drip Treatment", 1750, "treatment"),
	service("Sports Injury", "Z00.0", "Sports Injury Consultation", 1250, "consultation"),
	service("Longevity/Bio-Optimisation", "Z00.0", "Longevity/Bio-Optimisation Consultation", 1250, "consultation"),
	service("Weight Loss", "Z00.0", "Weight Loss Consultation", 1250, "consultation"),
	service("Testosterone Optimization/Replacement Therapy", "Z00.0", "Testosterone Optimization/Replacement Therapy", 1250, "therapy"),
	service("Sleep Issues", "Z00.0", "Sleep Issues Consultation", 1250, "consultation"),
	service("Botulinum Toxin (Botox) Therapy", "Z00.0", "Botulinum Toxin (Botox) Therapy", 1250, "therapy"),
	service("General Consultation", "Z00.0", "General Consultation", 960, "consultation"),
	service("Follow-up Consultation", "Z00.0", "Follow-up Consultation", 960, "consultation"),
}

// Order matters: the first alias contained in the name wins.
var builtinSynonyms = []synonym{
	{"echocardiogram", "Echocardiogram scan"},
	{"echo", "Echocardiogram scan"},
	{"heart scan", "Echocardiogram scan"},
	{"prescription", "Prescription"},
	{"script", "Prescription"},
	{"red light", "Red Light Therapy"},
	{"red light therapy", "Red Light Therapy"},
	{"light therapy", "Red Light Therapy"},
	{"inbody scan", "InBody Analysis (Scan only)"},
	{"inbody analysis scan", "InBody Analysis (Scan only)"},
	{"inbody full", "InBody Analysis (Full)"},
	{"inbody analysis full", "InBody Analysis (Full)"},
	{"inbody analysis", "InBody Analysis (Full)"},
	{"blood results", "Blood Results"},
	{"blood test", "Blood Results"},
	{"blood work", "Blood Results"},
	{"iv drip", "IV Drip"},
	{"intravenous", "IV Drip"},
	{"sports injury", "Sports Injury"},
	{"injury", "Sports Injury"},
	{"longevity", "Longevity/Bio-Optimisation"},
	{"bio-optimisation", "Longevity/Bio-Optimisation"},
	{"bio optimisation", "Longevity/Bio-Optimisation"},
	{"biooptimisation", "Longevity/Bio-Optimisation"},
	{"weight loss", "Weight Loss"},
	{"weight management", "Weight Loss"},
	{"testosterone optimization", "Testosterone Optimization/Replacement Therapy"},
	{"testosterone replacement", "Testosterone Optimization/Replacement Therapy"},
	{"testosterone therapy", "Testosterone Optimization/Replacement Therapy"},
	{"trt", "Testosterone Optimization/Replacement Therapy"},
	{"sleep issues", "Sleep Issues"},
	{"sleep problems", "Sleep Issues"},
	{"insomnia", "Sleep Issues"},
	{"sleep consultation", "Sleep Issues"},
	{"botulinum toxin", "Botulinum Toxin (Botox) Therapy"},
	{"botox therapy", "Botulinum Toxin (Botox) Therapy"},
	{"botox", "Botulinum Toxin (Botox) Therapy"},
	{"botulinum", "Botulinum Toxin (Botox) Therapy"},
	{"general consultation", "General Consultation"},
	{"consultation", "General Consultation"},
	{"follow-up", "Follow-up Consultation"},
	{"follow up", "Follow-up Consultation"},
}
