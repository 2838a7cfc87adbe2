package walker

import "github.com/reason-healthcare/rh-sub009/value"

// SystemTypeMapping maps FHIRPath system type URLs to FHIR primitive
// types. StructureDefinitions use these URLs on primitive leaf elements
// like Element.id and string.value.
var SystemTypeMapping = map[string]string{
	"http://hl7.org/fhirpath/System.String":   "string",
	"http://hl7.org/fhirpath/System.Boolean":  "boolean",
	"http://hl7.org/fhirpath/System.Integer":  "integer",
	"http://hl7.org/fhirpath/System.Decimal":  "decimal",
	"http://hl7.org/fhirpath/System.DateTime": "dateTime",
	"http://hl7.org/fhirpath/System.Time":     "time",
	"http://hl7.org/fhirpath/System.Date":     "date",
}

// FHIRPrimitiveTypes contains all FHIR R4 primitive type codes.
var FHIRPrimitiveTypes = map[string]bool{
	"boolean":      true,
	"integer":      true,
	"integer64":    true,
	"string":       true,
	"decimal":      true,
	"uri":          true,
	"url":          true,
	"canonical":    true,
	"base64Binary": true,
	"instant":      true,
	"date":         true,
	"dateTime":     true,
	"time":         true,
	"code":         true,
	"oid":          true,
	"id":           true,
	"markdown":     true,
	"unsignedInt":  true,
	"positiveInt":  true,
	"uuid":         true,
	"xhtml":        true,
}

// FHIRComplexTypes contains the FHIR R4 complex datatypes (not resources).
var FHIRComplexTypes = map[string]bool{
	"Address":             true,
	"Age":                 true,
	"Annotation":          true,
	"Attachment":          true,
	"BackboneElement":     true,
	"CodeableConcept":     true,
	"Coding":              true,
	"ContactDetail":       true,
	"ContactPoint":        true,
	"Contributor":         true,
	"Count":               true,
	"DataRequirement":     true,
	"Distance":            true,
	"Dosage":              true,
	"Duration":            true,
	"Element":             true,
	"ElementDefinition":   true,
	"Expression":          true,
	"Extension":           true,
	"HumanName":           true,
	"Identifier":          true,
	"MarketingStatus":     true,
	"Meta":                true,
	"Money":               true,
	"Narrative":           true,
	"ParameterDefinition": true,
	"Period":              true,
	"Population":          true,
	"ProdCharacteristic":  true,
	"ProductShelfLife":    true,
	"Quantity":            true,
	"Range":               true,
	"Ratio":               true,
	"Reference":           true,
	"RelatedArtifact":     true,
	"SampledData":         true,
	"Signature":           true,
	"SimpleQuantity":      true,
	"SubstanceAmount":     true,
	"Timing":              true,
	"TriggerDefinition":   true,
	"UsageContext":        true,
}

// ChoiceTypeSuffixes lists the valid type suffixes of choice elements.
// A key like valueString splits into the base "value" plus one of these.
var ChoiceTypeSuffixes = []string{
	"String",
	"Boolean",
	"Integer",
	"Integer64",
	"Decimal",
	"DateTime",
	"Date",
	"Time",
	"Instant",
	"Uri",
	"Url",
	"Canonical",
	"Code",
	"Id",
	"Markdown",
	"Base64Binary",
	"Oid",
	"Uuid",
	"PositiveInt",
	"UnsignedInt",

	"Address",
	"Age",
	"Annotation",
	"Attachment",
	"CodeableConcept",
	"Coding",
	"ContactDetail",
	"ContactPoint",
	"Contributor",
	"Count",
	"DataRequirement",
	"Distance",
	"Dosage",
	"Duration",
	"Expression",
	"HumanName",
	"Identifier",
	"Meta",
	"Money",
	"Narrative",
	"ParameterDefinition",
	"Period",
	"Quantity",
	"Range",
	"Ratio",
	"Reference",
	"RelatedArtifact",
	"SampledData",
	"Signature",
	"SimpleQuantity",
	"Timing",
	"TriggerDefinition",
	"UsageContext",
}

var choiceSuffixSet = func() map[string]bool {
	m := make(map[string]bool, len(ChoiceTypeSuffixes))
	for _, s := range ChoiceTypeSuffixes {
		m[s] = true
	}
	return m
}()

// IsChoiceSuffix reports whether s is a capitalized type name that can
// follow a choice element stem, such as Boolean or CodeableConcept.
func IsChoiceSuffix(s string) bool {
	return choiceSuffixSet[s]
}

// IsPrimitiveType reports whether the type code is a FHIR primitive.
func IsPrimitiveType(typeCode string) bool {
	return FHIRPrimitiveTypes[typeCode]
}

// IsComplexType reports whether the type code is a FHIR complex datatype.
func IsComplexType(typeCode string) bool {
	return FHIRComplexTypes[typeCode]
}

// NormalizeSystemType converts a FHIRPath system type URL to the FHIR
// primitive it stands for. Other codes pass through unchanged.
func NormalizeSystemType(typeCode string) string {
	if normalized, ok := SystemTypeMapping[typeCode]; ok {
		return normalized
	}
	return typeCode
}

// MatchesKind reports whether a parsed value has the shape the FHIR type
// requires. Dates, times and uri-like primitives are JSON strings; their
// lexical form is checked elsewhere.
func MatchesKind(v *value.Value, fhirType string) bool {
	fhirType = NormalizeSystemType(fhirType)
	switch fhirType {
	case "boolean":
		return v.Kind() == value.KindBool
	case "integer", "integer64", "unsignedInt", "positiveInt":
		return v.Kind() == value.KindInt
	case "decimal":
		return v.Kind() == value.KindInt || v.Kind() == value.KindDec
	case "string", "uri", "url", "canonical", "code", "id", "oid", "uuid",
		"markdown", "base64Binary", "xhtml", "date", "dateTime", "time", "instant":
		return v.Kind() == value.KindString
	default:
		return v.Kind() == value.KindObject
	}
}

// KindName describes a value's JSON shape for diagnostics.
func KindName(v *value.Value) string {
	switch v.Kind() {
	case value.KindNull:
		return "null"
	case value.KindBool:
		return "boolean"
	case value.KindInt, value.KindDec:
		return "number"
	case value.KindString:
		return "string"
	case value.KindObject:
		return "object"
	case value.KindSeq:
		return "array"
	default:
		return "unknown"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'A' && s[0] <= 'Z' {
		return string(s[0]-'A'+'a') + s[1:]
	}
	return s
}
