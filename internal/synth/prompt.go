package synth

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"llmstxt-crawler/pkg/types"
)

const (
	navPageLimit      = 8
	navContentChars   = 800
	otherPageLimit    = 10
	otherContentChars = 150
	navMinImportance  = 0.8
)

// systemInstruction fixes the output contract for the generator.
const systemInstruction = "Du bist ein Experte für das Erstellen von llms.txt Dateien. Antworte immer mit sauberem, gut formatiertem Markdown das exakt der spezifizierten Struktur folgt. Analysiere den vollständigen Content der Hauptnavigationsseiten um das Business, Services und Wertversprechen tiefgreifend zu verstehen."

const promptTemplate = `Du bist ein Experte für das Erstellen von optimalen llms.txt Dateien - ein standardisiertes Format für strukturierte Dokumentation für Large Language Models.

Erstelle ein optimales llms.txt File nach folgenden Prinzipien:

# [Firmen/Organisations Name]

> [2-3 Zeilen Beschreibung: Kerngeschäft, Größe/Reichweite, gesellschaftliche Rolle - zeitlos und ohne Daten]

## Main
- [Geschäftsbereich](URL): Spezifische Beschreibung was Nutzer hier finden und welchen Mehrwert es bietet
- [Kernaktivität](URL): Konkrete Erklärung des Inhalts und Nutzens für verschiedene Zielgruppen
- [Hauptservice](URL): Eindeutige Beschreibung ohne Redundanz zu anderen Links

## Publikationen & News
- [Aktuelle Inhalte](URL): Beschreibung der Art von Inhalten und Aktualisierungsfrequenz
- [Fachpublikationen](URL): Zielgruppe und Themenspektrum der Publikationen

## Kontakt & Informationen
- [Kontakt & Standorte](URL): Verfügbare Kontaktmöglichkeiten und Erreichbarkeit
- [Services & Preise](URL): Übersicht über Dienstleistungen und Konditionen (falls relevant)
- [FAQ & Support](URL): Häufige Fragen und Hilfestellungen (falls verfügbar)

Wichtige Hinweise:
- [Organisationstyp und Größenordnung]
- [Zielgruppen und Kundenkreis]
- [Besonderheiten und Alleinstellungsmerkmale]

OPTIMIERUNGSRICHTLINIEN:
1. STRUKTUR & FORMAT: Konsistente Formatierung, logische Gliederung, keine Doppelpunkte in Überschriften
2. ZEITLOSE GESTALTUNG: Keine Daten/Termine verwenden, die schnell veralten
3. KERNGESCHÄFT ABBILDEN: Alle wichtigen Geschäftsbereiche/Aktivitäten erfassen
4. SPEZIFISCHE BESCHREIBUNGEN: Konkret erklären was Nutzer finden, nicht nur wiederholen was der Link-Text sagt
5. NUTZENORIENTIERUNG: Welchen Mehrwert hat die Seite für verschiedene Nutzergruppen
6. ZIELGRUPPENVIELFALT: Links für Kunden, Medien, Partner, Bewerber je nach Relevanz
7. VERMEIDUNG VON REDUNDANZ: Jede Beschreibung soll einzigartige Informationen bieten
8. NACHHALTIGE LINKS: Hauptkategorien bevorzugen, nicht spezifische Produkte/Events
9. UNIVERSELL ANWENDBAR: Struktur funktioniert für alle Organisationstypen
10. KONTAKTDATEN EINBINDEN: Falls verfügbar, Kontaktinformationen in separater Sektion hinzufügen

WICHTIG: Arbeite mit den vorhandenen Informationen effizient. Die Startseite enthält oft bereits alle wichtigen Informationen über das Unternehmen. Ziel ist ein llms.txt File, das Nutzern schnell die wichtigsten Informationen vermittelt und sie effizient zu relevanten Inhalten weiterleitet.

WICHTIGE RICHTLINIEN:
1. Nutze den echten Firmen-/Website-Namen aus dem Content, nicht nur die Domain
2. ERWEITERTE BESCHREIBUNG: 2-3 Zeilen im Blockquote mit konkreten Details:
   - Was macht das Unternehmen genau
   - Größe/Reichweite (Anzahl Mitglieder/Kunden/Mitarbeiter)
   - Rolle/Position in der Branche oder Gesellschaft
3. BESCHREIBENDE LINK-TEXTE: Jeder Link MUSS eine Beschreibung haben:
   Format: [Link Titel](URL): Kurze Erklärung was auf dieser Seite zu finden ist
4. MAIN Bereich: Die 6-8 wichtigsten Bereiche mit Beschreibungen
5. INTELLIGENTE KATEGORISIERUNG:
   - "Kernthemen" oder "Hauptbereiche" für thematische Inhalte
   - "Publikationen & News" für aktuelle Inhalte
   - "Services" oder "Leistungen" für Angebote
   - "Organisation" für Unternehmensinfo
6. WICHTIGE HINWEISE Sektion: Zusätzliche Kontextinformationen
   - Besondere Merkmale des Unternehmens
   - Anzahl Mitglieder/Kunden/Standorte
   - Branchenstellung oder gesellschaftliche Rolle
7. KONTAKTDATEN: Falls verfügbar, Kontaktseiten verlinken und grundlegende Erreichbarkeit erwähnen
8. QUALITÄT VOR QUANTITÄT: Lieber weniger, aber dafür ausführlichere und beschreibende Einträge
9. Ziel: LLMs sollen den Zweck und Inhalt jeder Sektion sofort verstehen können
10. SCHWEIZER TASTATUR: Verwende nur Zeichen, die auf einer Schweizer Tastatur verfügbar sind - keine speziellen Anführungszeichen, Gedankenstriche oder andere Sonderzeichen

Website URL: %s

HAUPTNAVIGATIONS-SEITEN (Zusammenfassung):
%s

ANDERE WICHTIGE SEITEN:
%s

Basierend auf der kompletten Analyse des Hauptnavigations-Contents oben, generiere jetzt den llms.txt Content:`

type navPageDigest struct {
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	Category       types.Category `json:"category"`
	Importance     float64        `json:"importance"`
	WordCount      int            `json:"wordCount"`
	ContentSummary string         `json:"contentSummary"`
}

type otherPageDigest struct {
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	Category       types.Category `json:"category"`
	Importance     float64        `json:"importance"`
	ContentPreview string         `json:"contentPreview"`
}

// BuildPrompt renders the user prompt. Pages must already be sorted by importance.
func BuildPrompt(siteURL string, pages []types.ProcessedPage) (string, error) {
	nav, other := splitNavigation(siteURL, pages)

	navDigest := make([]navPageDigest, 0, len(nav))
	for _, p := range nav {
		navDigest = append(navDigest, navPageDigest{
			URL:            p.URL,
			Title:          p.Title,
			Category:       p.Category,
			Importance:     p.Importance,
			WordCount:      p.WordCount,
			ContentSummary: truncateRunes(p.Content, navContentChars),
		})
	}
	otherDigest := make([]otherPageDigest, 0, len(other))
	for _, p := range other {
		otherDigest = append(otherDigest, otherPageDigest{
			URL:            p.URL,
			Title:          p.Title,
			Category:       p.Category,
			Importance:     p.Importance,
			ContentPreview: truncateRunes(p.Content, otherContentChars),
		})
	}

	navJSON, err := json.MarshalIndent(navDigest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode navigation pages: %w", err)
	}
	otherJSON, err := json.MarshalIndent(otherDigest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode other pages: %w", err)
	}
	return fmt.Sprintf(promptTemplate, siteURL, navJSON, otherJSON), nil
}

// splitNavigation returns up to eight navigation pages (Main Navigation, importance >= 0.8, or
// the site URL itself) and up to ten of the remaining pages.
func splitNavigation(siteURL string, pages []types.ProcessedPage) (nav, other []types.ProcessedPage) {
	for _, p := range pages {
		isNav := p.Category == types.CategoryMainNavigation || p.Importance >= navMinImportance || p.URL == siteURL
		switch {
		case isNav && len(nav) < navPageLimit:
			nav = append(nav, p)
		case len(other) < otherPageLimit:
			other = append(other, p)
		}
	}
	return nav, other
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
