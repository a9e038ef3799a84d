package tables

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/JonMunkholm/repsync/internal/core"
)

// Departments maps DIVIPOLA department codes to their official names.
var Departments = map[string]string{
	"05": "ANTIOQUIA",
	"08": "ATLÁNTICO",
	"11": "BOGOTÁ D.C.",
	"13": "BOLÍVAR",
	"15": "BOYACÁ",
	"17": "CALDAS",
	"18": "CAQUETÁ",
	"19": "CAUCA",
	"20": "CESAR",
	"23": "CÓRDOBA",
	"25": "CUNDINAMARCA",
	"27": "CHOCÓ",
	"41": "HUILA",
	"44": "LA GUAJIRA",
	"47": "MAGDALENA",
	"50": "META",
	"52": "NARIÑO",
	"54": "NORTE DE SANTANDER",
	"63": "QUINDÍO",
	"66": "RISARALDA",
	"68": "SANTANDER",
	"70": "SUCRE",
	"73": "TOLIMA",
	"76": "VALLE DEL CAUCA",
	"81": "ARAUCA",
	"85": "CASANARE",
	"86": "PUTUMAYO",
	"88": "SAN ANDRÉS",
	"91": "AMAZONAS",
	"94": "GUAINÍA",
	"95": "GUAVIARE",
	"97": "VAUPÉS",
	"99": "VICHADA",
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// departmentCode validates a department code. Spreadsheets drop the leading
// zero, so a single digit is padded.
func departmentCode(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if !digitsOnly(raw) {
		return "", fmt.Errorf("department code %q is not numeric", raw)
	}
	if len(raw) == 1 {
		raw = "0" + raw
	}
	if len(raw) != 2 {
		return "", fmt.Errorf("department code %q must have 2 digits", raw)
	}
	if _, ok := Departments[raw]; !ok {
		return "", fmt.Errorf("department code %q is not a DIVIPOLA department", raw)
	}
	return raw, nil
}

// municipalityCode validates a 5-digit municipality code against its
// department. A 3-digit code is taken as relative to the department.
func municipalityCode(raw, department string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if !digitsOnly(raw) {
		return "", fmt.Errorf("municipality code %q is not numeric", raw)
	}
	switch len(raw) {
	case 3:
		if department == "" {
			return "", fmt.Errorf("municipality code %q needs a department", raw)
		}
		raw = department + raw
	case 4:
		raw = "0" + raw
	}
	if len(raw) != 5 {
		return "", fmt.Errorf("municipality code %q must have 5 digits", raw)
	}
	prefix := raw[:2]
	if _, ok := Departments[prefix]; !ok {
		return "", fmt.Errorf("municipality code %q has no valid department prefix", raw)
	}
	if department != "" && prefix != department {
		return "", fmt.Errorf("municipality code %q is outside department %s", raw, department)
	}
	return raw, nil
}

// divisions normalizes the department and municipality columns of a row.
// Invalid codes are cleared and reported; the row is always kept.
type divisions struct {
	DepartmentCode   string
	DepartmentName   string
	MunicipalityCode string
	MunicipalityName string
}

func readDivisions(row core.Row) (divisions, []core.ValidationWarning) {
	var (
		d        divisions
		warnings []core.ValidationWarning
	)
	d.DepartmentName = core.UpperName(row.Get(colDepartment))
	d.MunicipalityName = core.UpperName(row.Get(colMunicipality))

	dept, err := departmentCode(row.Get(colDepartmentCode))
	if err != nil {
		warnings = append(warnings, outOfRange(row.Line, colDepartmentCode, err))
	}
	d.DepartmentCode = dept

	muni, err := municipalityCode(row.Get(colMunicipalityCode), dept)
	if err != nil {
		warnings = append(warnings, outOfRange(row.Line, colMunicipalityCode, err))
	}
	d.MunicipalityCode = muni

	if d.DepartmentName == "" && dept != "" {
		d.DepartmentName = Departments[dept]
	}
	return d, warnings
}

func outOfRange(line int, column string, err error) core.ValidationWarning {
	return core.ValidationWarning{
		Line:   line,
		Column: column,
		Reason: core.ReasonOutOfRange,
		Detail: strings.TrimSpace(err.Error()) + "; code cleared",
	}
}
