package ports

import (
	"context"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
)

// FileHandler rapatrie la charge utile dans le répertoire de travail.
type FileHandler interface {
	Save(ctx context.Context, source string, name string) (string, error)
	Remove(path string) error
}

// Encoder pilote l'outil de transcodage. La progression est poussée sur le
// message de statut.
type Encoder interface {
	Encode(ctx context.Context, status domain.Message, input string, outputName string, quality domain.QualityProfile) (string, error)
}

type Uploader interface {
	Upload(ctx context.Context, status domain.Message, path string, quality domain.QualityProfile) (domain.UploadedFile, error)
}

// Messenger couvre les opérations du transport utilisées par le pipeline.
// Pour un message photo, EditMessage remplace la légende.
type Messenger interface {
	SendPhoto(ctx context.Context, chatID int64, photo string, caption string) (domain.Message, error)
	SendMessage(ctx context.Context, chatID int64, text string) (domain.Message, error)
	EditMessage(ctx context.Context, msg domain.Message, text string, buttons domain.Keyboard) error
	DeleteMessage(ctx context.Context, msg domain.Message) error
	CopyMessage(ctx context.Context, msg domain.Message, toChatID int64) (domain.Message, error)
	GetMessage(ctx context.Context, chatID int64, id int64) (domain.Message, error)
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Reporter est le puits d'observabilité. forward=false garde le message
// dans les logs locaux uniquement.
type Reporter interface {
	Report(ctx context.Context, severity Severity, message string, forward bool)
}
