package docproc

import (
	"math"
	"testing"
	"time"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

func TestTypesMatch(t *testing.T) {
	tests := []struct {
		expected, detected string
		want               bool
	}{
		{TypeCedulaFrontal, TypeCedulaFrontal, true},
		{"cédula de identidad cl (frontal)", TypeCedulaFrontal, true},
		{"Cedula", TypeCedulaReverso, true},
		{TypeCedulaFrontal, TypeCedulaReverso, false},
		{TypeCedulaReverso, TypeCedulaFrontal, false},
		{"Licencia", TypeLicencia, true},
		{"Pasaporte chileno", TypePasaporte, true},
		{TypePasaporte, TypeLicencia, false},
		{TypeCertificado, TypeOtro, false},
	}
	for _, tt := range tests {
		if got := TypesMatch(tt.expected, tt.detected); got != tt.want {
			t.Errorf("TypesMatch(%q, %q) = %v, ожидается %v", tt.expected, tt.detected, got, tt.want)
		}
	}
}

func TestNormalizeRUT(t *testing.T) {
	if NormalizeRUT("12.345.678-K") != NormalizeRUT("12345678 k") {
		t.Error("RUT в разных форматах должны совпадать")
	}
	if got := NormalizeRUT(" 9.876.543-2 "); got != "98765432" {
		t.Errorf("NormalizeRUT() = %q", got)
	}
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Juan Pérez Soto", "JUAN PEREZ SOTO", 1},
		{"José Muñoz", "jose munoz", 1},
		{"Juan Pérez", "Juan Pérez Soto", 2.0 / 3.0},
		{"Ana", "Juan", 0},
		{"", "Juan", 0},
	}
	for _, tt := range tests {
		if got := NameSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NameSimilarity(%q, %q) = %v, ожидается %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestValidateContent(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	applicant := &model.ApplicantData{RUT: "12.345.678-9", Nombre: "Juan Pérez Soto"}
	extracted := map[string]any{
		"rut":              "12345678-9",
		"nombre":           "JUAN",
		"apellido_paterno": "PEREZ",
		"apellido_materno": "SOTO",
	}

	t.Run("approved", func(t *testing.T) {
		decision, obs := ValidateContent(ContentCheck{
			Extracted: extracted, Applicant: applicant,
			ExpectedType: TypeCedulaFrontal, DetectedType: TypeCedulaFrontal,
		}, now)
		if decision != model.DecisionApproved {
			t.Errorf("decision = %s", decision)
		}
		if len(obs) != 1 || obs[0].Layer != LayerSuccess {
			t.Errorf("observations = %+v", obs)
		}
	})

	t.Run("rut mismatch and wrong side", func(t *testing.T) {
		data := map[string]any{"rut": "11.111.111-1", "nombre": "Juan", "apellido_paterno": "Pérez", "apellido_materno": "Soto"}
		decision, obs := ValidateContent(ContentCheck{
			Extracted: data, Applicant: applicant,
			ExpectedType: TypeCedulaFrontal, DetectedType: TypeCedulaReverso,
		}, now)
		if decision != model.DecisionRejected {
			t.Errorf("decision = %s", decision)
		}
		if len(obs) != 3 || obs[0].Reason != "Documento rechazado por 2 error(es) crítico(s)" {
			t.Errorf("observations = %+v", obs)
		}
	})

	t.Run("expired", func(t *testing.T) {
		decision, _ := ValidateContent(ContentCheck{
			Extracted: map[string]any{"fecha_vencimiento": "31/12/2025"},
		}, now)
		if decision != model.DecisionRejected {
			t.Errorf("decision = %s, ожидается REJECTED", decision)
		}
	})

	t.Run("valid expiry", func(t *testing.T) {
		decision, _ := ValidateContent(ContentCheck{
			Extracted: map[string]any{"fecha_vencimiento": "2030-01-01"},
		}, now)
		if decision != model.DecisionApproved {
			t.Errorf("decision = %s, ожидается APPROVED", decision)
		}
	})

	t.Run("unparseable expiry", func(t *testing.T) {
		decision, obs := ValidateContent(ContentCheck{
			Extracted: map[string]any{"fecha_vencimiento": "indefinida"},
		}, now)
		if decision != model.DecisionManualReview {
			t.Errorf("decision = %s, ожидается MANUAL_REVIEW", decision)
		}
		if obs[1].Layer != LayerWarning {
			t.Errorf("observations = %+v", obs)
		}
	})
}

func TestExpirationDate(t *testing.T) {
	if got := ExpirationDate(map[string]any{"vencimiento": "2030-01-01"}); got == nil || *got != "2030-01-01" {
		t.Errorf("ExpirationDate() = %v", got)
	}
	if got := ExpirationDate(map[string]any{"rut": "1"}); got != nil {
		t.Errorf("ExpirationDate() = %v, ожидается nil", *got)
	}
}
