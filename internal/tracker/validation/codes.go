package validation

import (
	"fmt"
	"sort"
)

// Code identifies a validation finding. Messages are fmt templates filled
// with the arguments passed to Reporter.AddError and Reporter.AddWarning.
type Code string

const (
	E1000 Code = "E1000"
	E1002 Code = "E1002"
	E1005 Code = "E1005"
	E1006 Code = "E1006"
	E1010 Code = "E1010"
	E1011 Code = "E1011"
	E1013 Code = "E1013"
	E1014 Code = "E1014"
	E1015 Code = "E1015"
	E1016 Code = "E1016"
	E1020 Code = "E1020"
	E1022 Code = "E1022"
	E1025 Code = "E1025"
	E1029 Code = "E1029"
	E1030 Code = "E1030"
	E1031 Code = "E1031"
	E1032 Code = "E1032"
	E1033 Code = "E1033"
	E1035 Code = "E1035"
	E1039 Code = "E1039"
	E1041 Code = "E1041"
	E1048 Code = "E1048"
	E1049 Code = "E1049"
	E1050 Code = "E1050"
	E1063 Code = "E1063"
	E1068 Code = "E1068"
	E1069 Code = "E1069"
	E1070 Code = "E1070"
	E1080 Code = "E1080"
	E1081 Code = "E1081"
	E1082 Code = "E1082"
	E1113 Code = "E1113"
	E1114 Code = "E1114"
	E1118 Code = "E1118"
	E1120 Code = "E1120"
	E1121 Code = "E1121"
	E1122 Code = "E1122"
	E1123 Code = "E1123"
	E1124 Code = "E1124"
	E1125 Code = "E1125"
	E1302 Code = "E1302"
	E4000 Code = "E4000"
	E4001 Code = "E4001"
	E4006 Code = "E4006"
	E4012 Code = "E4012"
	E4014 Code = "E4014"
	E4015 Code = "E4015"
	E4016 Code = "E4016"
	E4017 Code = "E4017"
	E5000 Code = "E5000"
)

var messages = map[Code]string{
	E1000: "User: `%v`, has no write access to OrganisationUnit: `%v`.",
	E1002: "TrackedEntity: `%v`, already exists.",
	E1005: "Could not find TrackedEntityType: `%v`.",
	E1006: "Attribute: `%v`, is not a valid uid.",
	E1010: "Could not find Program: `%v`, linked to Event.",
	E1011: "Could not find OrganisationUnit: `%v`, linked to Event.",
	E1013: "Could not find ProgramStage: `%v`, linked to Event.",
	E1014: "Provided Program: `%v`, is a Program without registration. An Enrollment cannot be created into Program without registration.",
	E1015: "TrackedEntity: `%v`, already has an active Enrollment in Program `%v`.",
	E1016: "TrackedEntity: `%v`, already has an Enrollment in Program: `%v`, and this program only allows enrolling one time.",
	E1020: "Enrollment date: `%v`, cannot be a future date.",
	E1022: "TrackedEntity: `%v`, must have same TrackedEntityType as Program `%v`.",
	E1025: "Property `enrolledAt` is null.",
	E1029: "Event OrganisationUnit: `%v`, and Program: `%v`, don't match.",
	E1030: "Event: `%v`, already exists.",
	E1031: "Event occurredAt date is missing.",
	E1032: "Event: `%v`, do not exist.",
	E1033: "Event: `%v`, Enrollment value is NULL.",
	E1035: "ProgramStage: `%v`, does not belong to Program: `%v`.",
	E1039: "ProgramStage: `%v`, is not repeatable and an event already exists.",
	E1041: "Enrollment OrganisationUnit: `%v`, and Program: `%v`, don't match.",
	E1048: "Object: `%v`, uid: `%v`, has an invalid uid format.",
	E1049: "Could not find OrganisationUnit: `%v`, linked to Tracked Entity.",
	E1050: "Event ScheduledAt date is missing.",
	E1063: "TrackedEntity: `%v`, does not exist.",
	E1068: "Could not find TrackedEntity: `%v`, linked to Enrollment.",
	E1069: "Could not find Program: `%v`, linked to Enrollment.",
	E1070: "Could not find OrganisationUnit: `%v`, linked to Enrollment.",
	E1080: "Enrollment: `%v`, already exists.",
	E1081: "Enrollment: `%v`, do not exist.",
	E1082: "Event: `%v`, is already deleted and cannot be modified.",
	E1113: "Enrollment: `%v`, is already deleted and cannot be modified.",
	E1114: "TrackedEntity: `%v`, is already deleted and cannot be modified.",
	E1118: "Assigned user `%v` is not a valid user.",
	E1120: "ProgramStage `%v` does not allow user assignment.",
	E1121: "Missing or invalid tracked entity property: `%v`.",
	E1122: "Missing or invalid enrollment property: `%v`.",
	E1123: "Missing or invalid event property: `%v`.",
	E1124: "Missing or invalid relationship property: `%v`.",
	E1125: "%v: `%v`, is present more than once in the payload.",
	E1302: "DataElement: `%v`, is not a valid uid.",
	E4000: "Relationship: `%v`, cannot link to itself.",
	E4001: "Relationship item `%v` for Relationship `%v` is invalid: an item must link exactly one tracker object.",
	E4006: "Could not find RelationshipType: `%v`.",
	E4012: "Could not find `%v`: `%v`, linked to Relationship.",
	E4014: "RelationshipType `%v` requires a `%v` on its `%v` side but a `%v` was found.",
	E4015: "Relationship: `%v`, already exists.",
	E4016: "Relationship: `%v`, do not exist.",
	E4017: "Relationship: `%v`, is already deleted and cannot be modified.",
	E5000: "%v: `%v` cannot be persisted because %v: `%v` referenced by it cannot be persisted.",
}

// Message returns the unformatted message template of the code.
func (c Code) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return string(c)
}

// Format fills the message template with args.
func (c Code) Format(args ...any) string {
	m, ok := messages[c]
	if !ok {
		return fmt.Sprint(append([]any{string(c)}, args...)...)
	}
	return fmt.Sprintf(m, args...)
}

// CodeInfo describes a code in the catalogue.
type CodeInfo struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Catalogue lists every known code in ascending order.
func Catalogue() []CodeInfo {
	out := make([]CodeInfo, 0, len(messages))
	for c, m := range messages {
		out = append(out, CodeInfo{Code: c, Message: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
