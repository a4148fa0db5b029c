package validation

import (
	"regexp"
	"strings"
)

// Reglas de nombre de policy (se usan como segmento de URL):
// - Solo minúsculas.
// - Empieza y termina con [a-z0-9].
// - En el medio se permite [a-z0-9:_.-].
// - Largo 1..64.
//
// Válidos: admin, me, records.read, records:write, a_b-c.d
// Inválidos: "", Records, bad space, .lead, trail:, a/b
var policyNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidPolicyName devuelve true si name cumple el patrón.
func ValidPolicyName(name string) bool {
	return policyNameRe.MatchString(name)
}

const maxRoleLen = 64

// ValidRoleName acepta cualquier caso (DOCTOR, nurse) pero no blancos,
// comas ni caracteres de control: los roles viajan como lista en el token
// y como CSV en los logs.
func ValidRoleName(role string) bool {
	if role == "" || len(role) > maxRoleLen {
		return false
	}
	return !strings.ContainsFunc(role, func(r rune) bool {
		return r <= ' ' || r == ',' || r == 0x7f
	})
}
