package service

// Caller — субъект запроса, от имени которого выполняется операция.
// Заполняется HTTP-слоем из JWT claims.
type Caller struct {
	// UserID — sub пользователя или client_id сервисного аккаунта
	UserID string
	// Admin — пользователь из группы администраторов
	Admin bool
	// Service — сервисный аккаунт (client_credentials)
	Service bool
}

// Privileged сообщает, видит ли субъект ресурсы всех пользователей.
func (c Caller) Privileged() bool {
	return c.Admin || c.Service
}

// CanAccess проверяет доступ субъекта к ресурсу владельца ownerID.
func (c Caller) CanAccess(ownerID string) bool {
	return c.Privileged() || (c.UserID != "" && c.UserID == ownerID)
}
