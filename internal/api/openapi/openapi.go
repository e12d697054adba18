// Пакет openapi — встроенные OpenAPI-контракты сервисов платформы.
// Используются middleware.RequestValidator для проверки тел запросов.
package openapi

import _ "embed"

var (
	//go:embed recruitment.yaml
	Recruitment []byte

	//go:embed folders.yaml
	Folders []byte

	//go:embed docproc.yaml
	Docproc []byte
)
