package domain

// Settings regroupe ce dont le pipeline a besoin pour publier.
type Settings struct {
	// Canal principal (annonces + messages de statut).
	MainChannel int64 `json:"mainChannel"`
	// Canal de stockage des fichiers encodés (cible des deep links).
	StoreChannel int64 `json:"storeChannel"`
	// Canal de logs (optionnel, 0 = désactivé).
	LogChannel int64 `json:"logChannel"`
	// Copies de sauvegarde des uploads.
	BackupChannels []int64 `json:"backupChannels"`

	// Deep links: https://<LinkHost>/<BotUsername>?start=<token>
	LinkHost    string `json:"linkHost"`
	BotUsername string `json:"botUsername"`

	Brand string `json:"brand"`
	Thumb string `json:"thumb"`

	// Échelle ordonnée : l'ordre des boutons suit cet ordre.
	Qualities []QualityProfile `json:"qualities"`
}

func DefaultSettings() Settings {
	return Settings{
		LinkHost:    "telegram.me",
		BotUsername: "AutoAnimeBot",
		Brand:       "@username",
		Thumb:       "https://telegra.ph/file/112ec08e59e73b6189a20.jpg",
	}
}
