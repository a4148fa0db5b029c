// Package authz decide si unas claims verificadas satisfacen una policy de
// roles. Es una función pura sobre sus argumentos: no hace I/O, no mira
// tiempo ni firmas (eso ya lo hizo el verifier).
package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dropDatabas3/jwkgate/internal/jwt"
	"github.com/dropDatabas3/jwkgate/internal/metrics"
	"github.com/dropDatabas3/jwkgate/internal/observability/logger"
	"github.com/dropDatabas3/jwkgate/internal/validation"
)

// DenyReason distingue "no sé quién sos" de "sé quién sos pero no podés".
type DenyReason string

const (
	ReasonNone             DenyReason = ""
	ReasonUnauthenticated  DenyReason = "unauthenticated"
	ReasonInsufficientRole DenyReason = "insufficient_role"
)

// Policy exige al menos uno de AnyOf. AnyOf vacío = cualquier caller autenticado.
type Policy struct {
	Name  string
	AnyOf []string
}

type Decision struct {
	Allowed bool
	Reason  DenyReason
}

var allow = Decision{Allowed: true}

// Authorize evalúa claims contra policy. claims nil significa que no hubo
// verificación exitosa.
func Authorize(claims *jwt.Claims, policy Policy) Decision {
	if claims == nil {
		return Decision{Reason: ReasonUnauthenticated}
	}
	if len(policy.AnyOf) == 0 {
		return allow
	}
	if hasAny(claims.Roles, policy.AnyOf) {
		return allow
	}
	return Decision{Reason: ReasonInsufficientRole}
}

// hasAny compara roles sin distinguir mayúsculas y recortando espacios.
func hasAny(haystack, needles []string) bool {
	if len(haystack) == 0 || len(needles) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(haystack))
	for _, v := range haystack {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	for _, n := range needles {
		if _, ok := set[strings.ToLower(strings.TrimSpace(n))]; ok {
			return true
		}
	}
	return false
}

// Gate envuelve Authorize con métricas y log de cada deny.
type Gate struct{}

func (Gate) Authorize(ctx context.Context, claims *jwt.Claims, policy Policy) Decision {
	d := Authorize(claims, policy)
	result := "allow"
	if !d.Allowed {
		result = string(d.Reason)
		log := logger.From(ctx).With(logger.Component("authz"), logger.Policy(policy.Name), logger.Reason(result))
		if claims != nil {
			log = log.With(logger.Subject(claims.Subject), logger.Roles(claims.Roles))
		}
		log.Info("authorization denied")
	}
	metrics.AuthzDecisions.WithLabelValues(policy.Name, result).Inc()
	return d
}

// Policies es el registro de policies por nombre (se arma desde config).
type Policies struct {
	m map[string]Policy
}

// NewPolicies valida y normaliza: nombres únicos con formato de segmento de
// URL, roles sin blancos ni comas.
func NewPolicies(defs map[string][]string) (*Policies, error) {
	p := &Policies{m: make(map[string]Policy, len(defs))}
	for name, roles := range defs {
		name = strings.TrimSpace(name)
		if !validation.ValidPolicyName(name) {
			return nil, fmt.Errorf("authz: invalid policy name %q", name)
		}
		anyOf := make([]string, 0, len(roles))
		for _, r := range roles {
			r = strings.TrimSpace(r)
			if !validation.ValidRoleName(r) {
				return nil, fmt.Errorf("authz: policy %q has an invalid role %q", name, r)
			}
			anyOf = append(anyOf, r)
		}
		if _, dup := p.m[name]; dup {
			return nil, fmt.Errorf("authz: duplicated policy %q", name)
		}
		p.m[name] = Policy{Name: name, AnyOf: anyOf}
	}
	return p, nil
}

// Lookup devuelve la policy o false si no existe.
func (p *Policies) Lookup(name string) (Policy, bool) {
	if p == nil {
		return Policy{}, false
	}
	pol, ok := p.m[name]
	return pol, ok
}

// MustLookup es para el wiring de rutas: una policy inexistente es un bug de config.
func (p *Policies) MustLookup(name string) Policy {
	pol, ok := p.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("authz: unknown policy %q", name))
	}
	return pol
}

// Names devuelve los nombres ordenados.
func (p *Policies) Names() []string {
	out := make([]string, 0, len(p.m))
	for n := range p.m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
