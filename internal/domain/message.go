package domain

// Message référence un post du transport de messagerie.
type Message struct {
	ChatID  int64    `json:"chatId"`
	ID      int64    `json:"id"`
	Text    string   `json:"text,omitempty"`
	Photo   string   `json:"photo,omitempty"`
	Buttons Keyboard `json:"buttons,omitempty"`
	// FileSize n'est renseigné que pour les documents.
	FileSize int64 `json:"fileSize,omitempty"`
}

type Button struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Keyboard est une grille de boutons, deux par ligne.
type Keyboard [][]Button

const buttonsPerRow = 2

// Append ajoute le bouton en respectant l'ordre d'arrivée et deux boutons
// par ligne.
func (k Keyboard) Append(b Button) Keyboard {
	if n := len(k); n > 0 && len(k[n-1]) < buttonsPerRow {
		last := append(append([]Button(nil), k[n-1]...), b)
		out := append(Keyboard(nil), k[:n-1]...)
		return append(out, last)
	}
	return append(append(Keyboard(nil), k...), []Button{b})
}

// Flatten renvoie les boutons dans l'ordre de lecture.
func (k Keyboard) Flatten() []Button {
	var out []Button
	for _, row := range k {
		out = append(out, row...)
	}
	return out
}

// UploadedFile est le résultat d'un upload vers le canal de stockage.
type UploadedFile struct {
	MessageID int64
	FileSize  int64
}
