package docproc

import (
	"fmt"
	"strings"
	"time"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

// Уровни наблюдений проверки содержимого.
const (
	LayerCritical = "critical"
	LayerWarning  = "warning"
	LayerSuccess  = "success"
)

// nameSimilarityThreshold — минимальная схожесть имён (Jaccard по словам).
const nameSimilarityThreshold = 0.7

// expiryLayouts — форматы даты окончания действия документа.
var expiryLayouts = []string{"2006-01-02", "02-01-2006", "02/01/2006", "2006/01/02"}

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
	"ä", "a", "ë", "e", "ï", "i", "ö", "o", "ü", "u",
	"ñ", "n",
)

var rutReplacer = strings.NewReplacer(".", "", "-", "", " ", "", "\t", "", "\n", "")

// ContentCheck — входные данные проверки содержимого.
type ContentCheck struct {
	Extracted    map[string]any
	Applicant    *model.ApplicantData
	ExpectedType string
	DetectedType string
}

// ValidateContent сверяет извлечённые данные с ожидаемыми данными соискателя.
// Критическая ошибка даёт REJECTED, только предупреждения — MANUAL_REVIEW.
// Первое наблюдение — итог проверки.
func ValidateContent(check ContentCheck, now time.Time) (model.Decision, []model.Observation) {
	var (
		observations []model.Observation
		critical     int
		warnings     int
	)
	add := func(layer, reason string) {
		observations = append(observations, model.Observation{Rule: model.RuleContent, Reason: reason, Layer: layer})
		switch layer {
		case LayerCritical:
			critical++
		case LayerWarning:
			warnings++
		}
	}

	if check.ExpectedType != "" && check.DetectedType != "" && !TypesMatch(check.ExpectedType, check.DetectedType) {
		add(LayerCritical, fmt.Sprintf("Tipo de documento incorrecto. Esperado: %s, Encontrado: %s",
			check.ExpectedType, check.DetectedType))
	}

	if check.Applicant != nil {
		if expected, found := check.Applicant.RUT, stringField(check.Extracted, "rut"); expected != "" && found != "" {
			if NormalizeRUT(expected) != NormalizeRUT(found) {
				add(LayerCritical, fmt.Sprintf("RUT no coincide. Esperado: %s, Encontrado: %s", expected, found))
			}
		}
		if expected := check.Applicant.Nombre; expected != "" && stringField(check.Extracted, "nombre") != "" {
			found := strings.Join(nonEmpty(
				stringField(check.Extracted, "nombre"),
				stringField(check.Extracted, "apellido_paterno"),
				stringField(check.Extracted, "apellido_materno"),
			), " ")
			if NameSimilarity(found, expected) < nameSimilarityThreshold {
				add(LayerCritical, fmt.Sprintf("Nombre no coincide. Esperado: %s, Encontrado: %s", expected, found))
			}
		}
	}

	if expiry := stringField(check.Extracted, "fecha_vencimiento"); expiry != "" {
		date, ok := parseExpiry(expiry)
		switch {
		case !ok:
			add(LayerWarning, "No se pudo verificar fecha de vencimiento: "+expiry)
		case date.Before(now):
			add(LayerCritical, "Documento vencido. Fecha de vencimiento: "+expiry)
		}
	}

	var (
		decision model.Decision
		summary  model.Observation
	)
	switch {
	case critical > 0:
		decision = model.DecisionRejected
		summary = model.Observation{Layer: LayerCritical,
			Reason: fmt.Sprintf("Documento rechazado por %d error(es) crítico(s)", critical)}
	case warnings > 0:
		decision = model.DecisionManualReview
		summary = model.Observation{Layer: LayerWarning,
			Reason: fmt.Sprintf("Revisión manual requerida (%d advertencia(s))", warnings)}
	default:
		decision = model.DecisionApproved
		summary = model.Observation{Layer: LayerSuccess,
			Reason: "Documento aprobado. Todos los datos coinciden correctamente."}
	}
	summary.Rule = model.RuleContent
	return decision, append([]model.Observation{summary}, observations...)
}

// TypesMatch сравнивает ожидаемый и распознанный тип документа.
// Для cédula учитывается сторона (frontal/reverso).
func TypesMatch(expected, detected string) bool {
	e, d := strings.ToLower(expected), strings.ToLower(detected)
	if e == d {
		return true
	}
	if strings.Contains(e, "cedula") || strings.Contains(e, "cédula") {
		if strings.Contains(d, "cedula") || strings.Contains(d, "cédula") || strings.Contains(d, "identidad") {
			if strings.Contains(e, "frontal") && strings.Contains(d, "reverso") {
				return false
			}
			if strings.Contains(e, "reverso") && strings.Contains(d, "frontal") {
				return false
			}
			return true
		}
	}
	for _, kind := range []string{"licencia", "pasaporte"} {
		if strings.Contains(e, kind) && strings.Contains(d, kind) {
			return true
		}
	}
	return false
}

// NormalizeRUT убирает точки, дефисы и пробелы, приводит к нижнему регистру.
func NormalizeRUT(rut string) string {
	return strings.ToLower(rutReplacer.Replace(rut))
}

// normalizeName приводит имя к нижнему регистру без диакритики.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(accentReplacer.Replace(strings.ToLower(name))), " ")
}

// NameSimilarity — коэффициент Жаккара по множествам слов двух имён.
func NameSimilarity(a, b string) float64 {
	wa := strings.Fields(normalizeName(a))
	wb := strings.Fields(normalizeName(b))
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	set := make(map[string]bool, len(wa)+len(wb))
	for _, w := range wa {
		set[w] = false
	}
	inter := 0
	for _, w := range wb {
		seen, inA := set[w]
		if inA && !seen {
			inter++
			set[w] = true
		} else if !inA {
			set[w] = true
		}
	}
	return float64(inter) / float64(len(set))
}

func parseExpiry(s string) (time.Time, bool) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
