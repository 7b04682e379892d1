package domain

import (
	"fmt"
	"strings"
)

// Codec est fixé à la configuration de chaque profil (plus de devinette
// sur la ligne de commande ffmpeg).
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecHEVC Codec = "hevc"
	CodecAV1  Codec = "av1"
)

func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "h264", "x264", "avc", "libx264":
		return CodecH264, nil
	case "hevc", "h265", "x265", "libx265":
		return CodecHEVC, nil
	case "av1", "libaom-av1", "libsvtav1":
		return CodecAV1, nil
	default:
		return "", fmt.Errorf("unknown codec %q", s)
	}
}

// Label est le tag affiché dans le nom de fichier publié.
func (c Codec) Label() string {
	switch c {
	case CodecHEVC:
		return "HEVC"
	case CodecAV1:
		return "AV1"
	case CodecH264:
		return "H264"
	default:
		return ""
	}
}

// QualityProfile est une entrée de l'échelle d'encodage.
type QualityProfile struct {
	Name   string   `toml:"name" json:"name"`
	Height int      `toml:"height" json:"height"`
	Codec  Codec    `toml:"codec" json:"codec"`
	Args   []string `toml:"args" json:"args"`
}

// Resolution renvoie "1080p" pour le profil "1080".
func (q QualityProfile) Resolution() string {
	if q.Height > 0 {
		return fmt.Sprintf("%dp", q.Height)
	}
	return strings.TrimSuffix(q.Name, "p") + "p"
}
