package bodymap

func anatomical(typ, name string, cat Category, regionID string, view View, x, y float64, keywords ...string) MarkerTypeDefinition {
	return MarkerTypeDefinition{
		Type:        typ,
		DisplayName: name,
		Category:    cat,
		Default:     Placement{BodyRegion: regionID, BodyView: view, Position: Point{X: x, Y: y}},
		Keywords:    keywords,
	}
}

// badge builds a perimeter status badge. Badges keep a nominal anatomical
// placement at the head so stored rows satisfy the region constraint.
func badge(typ, name string, cat Category, short, color, icon string, keywords ...string) MarkerTypeDefinition {
	return MarkerTypeDefinition{
		Type:          typ,
		DisplayName:   name,
		Category:      cat,
		Default:       Placement{BodyRegion: "head", BodyView: ViewFront, Position: Point{X: 50, Y: 6}},
		Keywords:      keywords,
		IsStatusBadge: true,
		Badge:         &BadgeAppearance{ShortLabel: short, Color: color, Icon: icon},
	}
}

func builtinMarkerTypes() []MarkerTypeDefinition {
	return []MarkerTypeDefinition{
		// Vascular access
		anatomical("central_line", "Central Line", CategoryCritical, "chest_right", ViewFront, 42, 24,
			"central line", "cvc", "central venous catheter", "triple lumen", "subclavian line").
			withSide(LateralityRight, "chest_right", 42, 24).
			withSide(LateralityLeft, "chest_left", 58, 24),
		anatomical("picc_line", "PICC Line", CategoryModerate, "upper_arm_right", ViewFront, 28, 30,
			"picc", "picc line", "peripherally inserted central catheter").
			withSide(LateralityRight, "upper_arm_right", 28, 30).
			withSide(LateralityLeft, "upper_arm_left", 72, 30),
		anatomical("peripheral_iv", "Peripheral IV", CategoryInformational, "forearm_right", ViewFront, 23, 45,
			"peripheral iv", "piv", "iv line", "iv site", "iv catheter").
			withSide(LateralityRight, "forearm_right", 23, 45).
			withSide(LateralityLeft, "forearm_left", 77, 45),
		anatomical("arterial_line", "Arterial Line", CategoryCritical, "forearm_right", ViewFront, 21, 50,
			"arterial line", "art line", "a-line").
			withSide(LateralityRight, "forearm_right", 21, 50).
			withSide(LateralityLeft, "forearm_left", 79, 50),
		anatomical("dialysis_catheter", "Dialysis Catheter", CategoryChronic, "chest_right", ViewFront, 44, 23,
			"dialysis catheter", "hemodialysis catheter", "permcath", "quinton").
			withSide(LateralityRight, "chest_right", 44, 23).
			withSide(LateralityLeft, "chest_left", 56, 23),
		anatomical("av_fistula", "AV Fistula", CategoryChronic, "forearm_left", ViewFront, 77, 45,
			"av fistula", "arteriovenous fistula", "fistula", "av graft").
			withSide(LateralityRight, "forearm_right", 23, 45).
			withSide(LateralityLeft, "forearm_left", 77, 45),

		// Tubes and drains
		anatomical("chest_tube", "Chest Tube", CategoryCritical, "chest_right", ViewFront, 38, 35,
			"chest tube", "thoracostomy tube", "pleural drain").
			withSide(LateralityRight, "chest_right", 38, 35).
			withSide(LateralityLeft, "chest_left", 62, 35),
		anatomical("foley_catheter", "Foley Catheter", CategoryMonitoring, "pelvis", ViewFront, 50, 60,
			"foley", "foley catheter", "urinary catheter", "indwelling catheter"),
		anatomical("ng_tube", "NG Tube", CategoryModerate, "head", ViewFront, 53, 8,
			"ng tube", "nasogastric", "nasogastric tube"),
		anatomical("endotracheal_tube", "Endotracheal Tube", CategoryCritical, "head", ViewFront, 50, 9,
			"endotracheal tube", "endotracheal", "et tube", "intubated"),
		anatomical("tracheostomy", "Tracheostomy", CategoryCritical, "neck", ViewFront, 50, 14,
			"tracheostomy", "trach", "trach tube"),
		anatomical("g_tube", "G-Tube", CategoryModerate, "abdomen", ViewFront, 55, 42,
			"g-tube", "g tube", "gastrostomy", "peg tube"),
		anatomical("jp_drain", "JP Drain", CategoryModerate, "abdomen", ViewFront, 50, 48,
			"jp drain", "jackson-pratt", "jackson pratt", "surgical drain").
			withSide(LateralityRight, "abdomen", 44, 48).
			withSide(LateralityLeft, "abdomen", 56, 48),
		anatomical("ostomy", "Ostomy", CategoryChronic, "abdomen", ViewFront, 58, 50,
			"ostomy", "colostomy", "ileostomy", "urostomy"),
		anatomical("evd", "External Ventricular Drain", CategoryNeurological, "head", ViewFront, 46, 3,
			"evd", "external ventricular drain", "ventriculostomy"),
		anatomical("epidural_catheter", "Epidural Catheter", CategoryModerate, "lower_back", ViewBack, 50, 46,
			"epidural", "epidural catheter", "nerve block catheter"),

		// Skin and wounds
		anatomical("wound", "Wound", CategoryModerate, "abdomen", ViewFront, 50, 47,
			"wound", "laceration", "abrasion"),
		anatomical("wound_vac", "Wound VAC", CategoryModerate, "abdomen", ViewFront, 50, 50,
			"wound vac", "negative pressure wound therapy", "npwt"),
		anatomical("surgical_incision", "Surgical Incision", CategoryMonitoring, "abdomen", ViewFront, 50, 45,
			"incision", "surgical incision", "surgical site", "staples", "sutures"),
		anatomical("pressure_injury", "Pressure Injury", CategoryModerate, "sacrum", ViewBack, 50, 55,
			"pressure injury", "pressure ulcer", "pressure sore", "bedsore", "decubitus"),

		// Devices and chronic findings
		anatomical("pacemaker", "Pacemaker / ICD", CategoryChronic, "chest_left", ViewFront, 60, 26,
			"pacemaker", "aicd", "implanted defibrillator"),
		anatomical("insulin_pump", "Insulin Pump / CGM", CategoryChronic, "abdomen", ViewFront, 44, 50,
			"insulin pump", "cgm", "glucose monitor", "continuous glucose monitor"),
		anatomical("cardiac_monitor", "Telemetry", CategoryMonitoring, "chest_left", ViewFront, 56, 32,
			"telemetry", "tele box", "cardiac monitor", "holter"),
		anatomical("fracture", "Fracture", CategoryModerate, "thigh_right", ViewFront, 43, 73,
			"fracture", "broken bone", "splint").
			withSide(LateralityRight, "thigh_right", 43, 73).
			withSide(LateralityLeft, "thigh_left", 57, 73),
		anatomical("amputation", "Amputation", CategoryChronic, "lower_leg_right", ViewFront, 43, 90,
			"amputation", "amputee", "below knee amputation", "above knee amputation").
			withSide(LateralityRight, "lower_leg_right", 43, 90).
			withSide(LateralityLeft, "lower_leg_left", 57, 90),
		anatomical("stroke_deficit", "Stroke Deficit", CategoryNeurological, "head", ViewFront, 50, 5,
			"stroke", "cva", "hemiparesis", "hemiplegia"),

		// Code status (top perimeter)
		badge("code_full_code", "Full Code", CategoryInformational, "FULL", "#16a34a", "heart-pulse",
			"full code"),
		badge("code_dnr", "Do Not Resuscitate", CategoryCritical, "DNR", "#dc2626", "ban",
			"dnr", "do not resuscitate", "no code"),
		badge("code_dni", "Do Not Intubate", CategoryCritical, "DNI", "#ea580c", "lungs",
			"dni", "do not intubate"),
		badge("code_comfort_care", "Comfort Care", CategoryCritical, "CMO", "#7c3aed", "hand-heart",
			"comfort care", "comfort measures", "hospice"),

		// Isolation and alerts (right perimeter)
		badge("isolation_contact", "Contact Isolation", CategoryModerate, "CONTACT", "#facc15", "hand",
			"contact isolation", "contact precautions", "mrsa", "vre", "c diff", "c. diff", "cdiff"),
		badge("isolation_droplet", "Droplet Isolation", CategoryModerate, "DROPLET", "#22c55e", "droplets",
			"droplet isolation", "droplet precautions"),
		badge("isolation_airborne", "Airborne Isolation", CategoryCritical, "AIRBORNE", "#3b82f6", "wind",
			"airborne isolation", "airborne precautions", "tuberculosis", "tb isolation", "measles"),
		badge("isolation_neutropenic", "Neutropenic Precautions", CategoryModerate, "NEUTRO", "#a855f7", "shield",
			"neutropenic", "neutropenic precautions", "reverse isolation"),
		badge("allergy_alert", "Allergy Alert", CategoryCritical, "ALLERGY", "#ef4444", "alert-triangle",
			"allergy", "allergies", "anaphylaxis", "latex allergy"),
		badge("difficult_airway", "Difficult Airway", CategoryCritical, "AIRWAY", "#f97316", "lungs",
			"difficult airway", "difficult intubation"),
		badge("difficult_iv_access", "Difficult IV Access", CategoryModerate, "IV", "#0ea5e9", "syringe",
			"difficult iv access", "difficult access", "hard stick"),
		badge("limb_alert", "Limb Alert", CategoryModerate, "LIMB", "#ec4899", "hand-off",
			"limb alert", "restricted extremity", "no blood pressure", "no bp", "no sticks"),

		// Precautions (left perimeter)
		badge("fall_risk", "Fall Risk", CategoryModerate, "FALL", "#eab308", "person-falling",
			"fall risk", "high fall risk", "fall precautions"),
		badge("aspiration_precaution", "Aspiration Precautions", CategoryModerate, "ASP", "#14b8a6", "glass-water",
			"aspiration", "aspiration precautions", "aspiration risk"),
		badge("npo", "NPO", CategoryInformational, "NPO", "#64748b", "utensils-crossed",
			"npo", "nothing by mouth"),
		badge("seizure_precaution", "Seizure Precautions", CategoryNeurological, "SZ", "#8b5cf6", "zap",
			"seizure", "seizure precautions", "epilepsy"),
		badge("bleeding_precaution", "Bleeding Precautions", CategoryModerate, "BLEED", "#b91c1c", "droplet",
			"bleeding precautions", "bleeding risk", "anticoagulated", "anticoagulation"),
		badge("elopement_risk", "Elopement Risk", CategoryMonitoring, "ELOPE", "#f59e0b", "door-open",
			"elopement", "elopement risk", "wandering"),
	}
}
