package model

import "time"

// FolderType — тип папки.
type FolderType string

const (
	// FolderRoot — корневая папка пользователя
	FolderRoot FolderType = "ROOT"
	// FolderGeneral — произвольная папка
	FolderGeneral FolderType = "GENERAL"
	// FolderCargo — папка вакансии (cargo), связана с JobPosting
	FolderCargo FolderType = "CARGO"
	// FolderApplicant — папка соискателя внутри папки Cargo
	FolderApplicant FolderType = "APPLICANT"
)

// Valid проверяет допустимость значения.
func (t FolderType) Valid() bool {
	switch t {
	case FolderRoot, FolderGeneral, FolderCargo, FolderApplicant:
		return true
	}
	return false
}

// AllowsParent проверяет, может ли папка типа t лежать в папке типа parent.
// parent == "" — папка верхнего уровня.
func (t FolderType) AllowsParent(parent FolderType) bool {
	switch t {
	case FolderRoot, FolderGeneral, FolderCargo:
		return parent == "" || parent == FolderRoot || parent == FolderGeneral
	case FolderApplicant:
		return parent == FolderCargo
	}
	return false
}

// Folder — папка в иерархии folders-service.
type Folder struct {
	FolderID  string         `json:"folderId"`
	UserID    string         `json:"userId"`
	Name      string         `json:"name"`
	Type      FolderType     `json:"type"`
	ParentID  *string        `json:"parentId,omitempty"`
	JobID     *string        `json:"jobId,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// FolderNode — узел дерева папок (GetFolderTree).
type FolderNode struct {
	Folder
	Children []*FolderNode `json:"children"`
}

// DeletedSubtree — сведения об удалённом поддереве, нужные для
// best-effort очистки после коммита транзакции.
type DeletedSubtree struct {
	// FolderIDs — все удалённые папки (включая корень поддерева)
	FolderIDs []string
	// CargoLinks — папки Cargo с привязанной вакансией
	CargoLinks []CargoLink
	// S3Keys — ключи объектов удалённых документов
	S3Keys []string
	// DocumentIDs — удалённые документы
	DocumentIDs []string
	// ProcessingIDs — результаты удалённых документов в docproc-service
	ProcessingIDs []string
}

// CargoLink — связь папки Cargo с вакансией.
type CargoLink struct {
	FolderID string
	JobID    string
}

// BulkDeleteOutcome — результат удаления одной папки в пакетной операции.
type BulkDeleteOutcome string

const (
	BulkDeleted        BulkDeleteOutcome = "deleted"
	BulkFolderNotFound BulkDeleteOutcome = "not_found"
	BulkForbidden      BulkDeleteOutcome = "forbidden"
	BulkDeleteError    BulkDeleteOutcome = "error"
)

// BulkDeleteResult — результат по одному ID.
type BulkDeleteResult struct {
	FolderID string            `json:"folderId"`
	Result   BulkDeleteOutcome `json:"result"`
	// DeletedCount — количество удалённых папок поддерева
	DeletedCount int `json:"deletedCount,omitempty"`
}
