package naming

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/unicode/norm"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/domain"
)

// DescriptionLimit est le budget de caractères du synopsis dans la légende.
const DescriptionLimit = 200

const defaultSource = "Subsplease"

var genreMarkers = map[string]string{
	"Action":        "👊",
	"Adventure":     "🪂",
	"Comedy":        "🤣",
	"Drama":         "🎭",
	"Ecchi":         "💋",
	"Fantasy":       "🧞",
	"Romance":       "💕",
	"Sci-Fi":        "🛰️",
	"Slice of Life": "☕",
	"Mystery":       "🕵️",
	"Supernatural":  "👻",
	"Thriller":      "🔪",
}

var (
	reIllegal = regexp.MustCompile(`[<>:"/\\|?*\x00]`)
	reTags    = regexp.MustCompile(`<[^>]*>`)
)

// UploadName est le nom canonique du fichier encodé pour une qualité.
func UploadName(p ParsedName, m domain.AnimeMetadata, q domain.QualityProfile) string {
	fallback := p.Title
	if fallback == "" {
		fallback = cleanTitle(p.Raw)
	}
	title := m.PreferredTitle(fallback)

	lang := "Sub"
	if p.MultiAudio {
		lang = "Multi-Audio"
	}

	var b strings.Builder
	if p.Episode > 0 {
		season := p.Season
		if season <= 0 {
			season = 1
		}
		fmt.Fprintf(&b, "[S%s-E%s] ", pad2(season), pad2(p.Episode))
	}
	b.WriteString(title)
	fmt.Fprintf(&b, " [%s]", q.Resolution())
	if label := q.Codec.Label(); label != "" {
		fmt.Fprintf(&b, " [%s]", label)
	}
	fmt.Fprintf(&b, " [%s].mkv", lang)
	return sanitizeFilename(b.String())
}

func sanitizeFilename(name string) string {
	name = norm.NFC.String(name)
	name = reIllegal.ReplaceAllString(name, " ")
	name = reSpaces.ReplaceAllString(name, " ")
	return strings.Trim(name, " .")
}

// Truncate coupe s à limit caractères et ajoute "..." si nécessaire.
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

// PosterURL renvoie la bannière AniList, sinon l'image par défaut.
func PosterURL(m domain.AnimeMetadata, fallback string) string {
	if m.ID > 0 {
		return "https://img.anili.st/media/" + strconv.Itoa(m.ID)
	}
	return fallback
}

// Caption construit la légende HTML de l'annonce.
func Caption(p ParsedName, m domain.AnimeMetadata, brand string) string {
	fallback := p.Title
	if fallback == "" {
		fallback = p.Raw
	}
	title := m.PreferredTitle(fallback)

	genres := make([]string, 0, len(m.Genres))
	for _, g := range m.Genres {
		genres = append(genres, strings.TrimSpace(genreMarkers[g]+" "+g))
	}
	genreText := strings.Join(genres, ", ")
	if genreText == "" {
		genreText = "N/A"
	}

	status := orNA(m.Status)
	source := m.Source
	if source == "" {
		source = defaultSource
	}
	episode := "N/A"
	if p.Episode > 0 {
		episode = strconv.Itoa(p.Episode)
	}
	score := "N/A"
	if m.AverageScore > 0 {
		score = strconv.Itoa(m.AverageScore) + "%"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>㊂ <i>%s</i></b>\n", html.EscapeString(title))
	b.WriteString("<b>╭┅┅┅┅┅┅┅┅┅┅┅┅┅┅┅┅┅┅┅┅</b>\n")
	line := func(label, value string) {
		fmt.Fprintf(&b, "<b>⊙</b> <i>%s:</i> <i>%s</i>\n", label, html.EscapeString(value))
	}
	line("Genres", genreText)
	line("Status", status)
	line("Source", source)
	line("Episode", episode)
	if aired := airedRange(m.StartDate, m.EndDate); aired != "" {
		line("Aired", aired)
	}
	line("Score", score)
	b.WriteString("<b>⊙</b> <i>Audio: Japanese</i>\n")
	b.WriteString("<b>⊙</b> <i>Subtitle: English</i>\n")
	b.WriteString("<b>╰┅┅┅┅┅┅┅┅┅┅┅┅┅┅┅┅┅┅┅┅</b>\n")
	if synopsis := Synopsis(m.Description); synopsis != "" {
		fmt.Fprintf(&b, "<blockquote>%s</blockquote>\n", html.EscapeString(synopsis))
	}
	fmt.Fprintf(&b, "⌬  <b><i>Powered By</i></b> ~ <b><i>%s</i></b>", html.EscapeString(brand))
	return b.String()
}

// Synopsis nettoie la description AniList (balises, espaces) puis la tronque.
func Synopsis(desc string) string {
	desc = reTags.ReplaceAllString(desc, " ")
	desc = strings.Join(strings.Fields(desc), " ")
	return Truncate(desc, DescriptionLimit)
}

func airedRange(start, end domain.FuzzyDate) string {
	s := FormatDate(start)
	if s == "" {
		return ""
	}
	if e := FormatDate(end); e != "" {
		return s + " – " + e
	}
	return s
}

// FormatDate: "January 2, 2006", vide si la date est incomplète.
func FormatDate(d domain.FuzzyDate) string {
	if !d.IsComplete() {
		return ""
	}
	return fmt.Sprintf("%s %d, %d", time.Month(d.Month).String(), d.Day, d.Year)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// QualityLabel met le nom de la qualité en chiffres gras: "1080" → "𝟭𝟬𝟴𝟬𝗽".
func QualityLabel(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSuffix(name, "p") {
		if r >= '0' && r <= '9' {
			b.WriteRune(0x1D7EC + (r - '0'))
			continue
		}
		b.WriteRune(r)
	}
	b.WriteRune(0x1D5FD)
	return b.String()
}

// ButtonText est le libellé d'un bouton de récupération.
func ButtonText(q domain.QualityProfile, size int64) string {
	if size < 0 {
		size = 0
	}
	return QualityLabel(q.Name) + " - " + humanize.Bytes(uint64(size))
}

// StatusText est le corps du message de statut d'un run.
func StatusText(fileName, stage string) string {
	return fmt.Sprintf("‣ <b>File Name :</b> <b><i>%s</i></b>\n\n<i>%s</i>", html.EscapeString(fileName), stage)
}
