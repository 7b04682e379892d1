package app

import (
	"errors"
	"fmt"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/ports"
)

var ErrNotFound = ports.ErrNotFound

// Codes stables, persistés dans runs.error_code.
const (
	CodeMetadataFailure     = "metadata_failure"
	CodeAnnouncementFailure = "announcement_failure"
	CodeDownloadFailure     = "download_failure"
	CodeAdmissionTimeout    = "admission_timeout"
	CodeEncodeFailure       = "encode_failure"
	CodeUploadFailure       = "upload_failure"
	CodeInternal            = "internal_panic"
)

var (
	ErrMetadataGaveUp  = errors.New("metadata retry budget exhausted")
	ErrDuplicateTicket = errors.New("ticket already registered")
	ErrTicketWithdrawn = errors.New("ticket withdrawn")
)

// StageError rattache une erreur à l'étape du run qui l'a produite. Code
// est l'une des constantes Code* ci-dessus, persisté tel quel dans l'historique
// et exposé par l'API.
//
// Seul metadata_failure est non fatal : le run continue sans métadonnées.
// encode_failure et upload_failure arrêtent les qualités restantes, celles
// déjà publiées restent en ligne. internal_panic couvre les paniques
// récupérées et les fautes de la file d'admission.
type StageError struct {
	Code    string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Code + ": " + e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *StageError) Unwrap() error { return e.Err }

func stageError(code, message string, err error) *StageError {
	return &StageError{Code: code, Message: message, Err: err}
}

// ErrorCode renvoie le code d'une StageError, sinon CodeInternal.
func ErrorCode(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// AdmissionFaultError signale un grant tiré pour un ticket non enregistré :
// c'est une faute de programmation, jamais un cas normal.
type AdmissionFaultError struct {
	ID int64
}

func (e *AdmissionFaultError) Error() string {
	return fmt.Sprintf("admission consistency fault: no ticket registered for %d", e.ID)
}
