package panel

import (
	"encoding/json"
	"sort"
)

const (
	ActionHealth  = "health"
	ActionArm     = "arm"
	ActionTakeoff = "takeoff"
	ActionLand    = "land"
	ActionLoad    = "load"
	ActionUnload  = "unload"

	keyMenu     = "menu"
	keyAltitude = "altitude_prompt"
	keyLanguage = "language"
	keyQuit     = "quit"

	DefaultLanguage = "en"
)

var labels = map[string]map[string]string{
	"en": {
		ActionHealth:  "Health",
		ActionArm:     "Arm",
		ActionTakeoff: "Takeoff",
		ActionLand:    "Land",
		ActionLoad:    "Load",
		ActionUnload:  "Unload",
		keyMenu:       "Select action",
		keyAltitude:   "Takeoff altitude (m)",
		keyLanguage:   "Language",
		keyQuit:       "Quit",
	},
	"ru": {
		ActionHealth:  "Состояние",
		ActionArm:     "Включить",
		ActionTakeoff: "Взлёт",
		ActionLand:    "Посадка",
		ActionLoad:    "Погрузка",
		ActionUnload:  "Разгрузка",
		keyMenu:       "Выберите действие",
		keyAltitude:   "Введите высоту взлета (м)",
		keyLanguage:   "Язык",
		keyQuit:       "Выход",
	},
	"de": {
		ActionHealth:  "Status",
		ActionArm:     "Scharfschalten",
		ActionTakeoff: "Start",
		ActionLand:    "Landung",
		ActionLoad:    "Beladen",
		ActionUnload:  "Entladen",
		keyMenu:       "Aktion wählen",
		keyAltitude:   "Starthöhe (m)",
		keyLanguage:   "Sprache",
		keyQuit:       "Beenden",
	},
	"pl": {
		ActionHealth:  "Stan",
		ActionArm:     "Uzbrój",
		ActionTakeoff: "Start",
		ActionLand:    "Lądowanie",
		ActionLoad:    "Załadunek",
		ActionUnload:  "Rozładunek",
		keyMenu:       "Wybierz akcję",
		keyAltitude:   "Wysokość startu (m)",
		keyLanguage:   "Język",
		// no entry for quit, falls back to English
	},
}

// Languages lists the supported language codes.
func Languages() []string {
	langs := make([]string, 0, len(labels))
	for lang := range labels {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Label looks key up in lang's table, then in English, then gives up and
// returns the key itself.
func Label(lang, key string) string {
	table, ok := labels[lang]
	if !ok {
		table = labels[DefaultLanguage]
	}
	if label, ok := table[key]; ok {
		return label
	}
	if label, ok := labels[DefaultLanguage][key]; ok {
		return label
	}
	return key
}

// Format renders a result the way the panel shows it: "<label>: <json>".
func Format(label string, result map[string]interface{}) string {
	data, err := json.Marshal(result)
	if err != nil {
		data = []byte(`{"error":"could not encode result"}`)
	}
	return label + ": " + string(data)
}
