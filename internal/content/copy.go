package content

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
)

var monthNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

var weekdayNames = [...]string{"Domingo", "Segunda", "Terça", "Quarta", "Quinta", "Sexta", "Sábado"}

// FormatDate renders "16 de Janeiro".
func FormatDate(t time.Time) string {
	t = t.In(events.Local)
	return fmt.Sprintf("%d de %s", t.Day(), monthNames[t.Month()-1])
}

// FormatTime renders "19:00".
func FormatTime(t time.Time) string {
	return t.In(events.Local).Format("15:04")
}

// Weekday renders the short Portuguese weekday, e.g. "Sábado".
func Weekday(t time.Time) string {
	return weekdayNames[t.In(events.Local).Weekday()]
}

func venueOf(r events.Record) string {
	if strings.TrimSpace(r.Venue) == "" {
		return "Salvador"
	}
	return r.Venue
}

func priceOf(r events.Record) string {
	if strings.TrimSpace(r.PriceText) == "" {
		return "Consulte"
	}
	return r.PriceText
}

func listPrice(r events.Record) string {
	if r.IsFree {
		return "Grátis"
	}
	return priceOf(r)
}

func numbered(records []events.Record, line func(events.Record) string) string {
	items := make([]string, 0, len(records))
	for i, r := range records {
		items = append(items, fmt.Sprintf("%d️⃣ %s\n   %s", i+1, r.Title, line(r)))
	}
	return strings.Join(items, "\n\n")
}

// SingleEventCopy is the caption of a highlighted event post.
func SingleEventCopy(r events.Record) string {
	return fmt.Sprintf(`🎭 %s

📍 %s
📅 %s, %s • %s

💰 %s

👉 Link na bio para mais eventos

#SalvadorBA #EventosSalvador #AgendaCulturalSalvador`,
		r.Title, venueOf(r), Weekday(r.Start), FormatDate(r.Start), FormatTime(r.Start), priceOf(r))
}

const emptyFooter = `

🔗 Confira no link da bio

#SalvadorBA #AgendaCulturalSalvador`

// TodayListCopy is the caption of the "today" list post.
func TodayListCopy(records []events.Record) string {
	if len(records) == 0 {
		return "Nenhum evento encontrado para hoje 😔\n\nMas temos muitos outros rolês incríveis na agenda!" + emptyFooter
	}
	list := numbered(records, func(r events.Record) string {
		return fmt.Sprintf("📍 %s • %s • %s", venueOf(r), FormatTime(r.Start), listPrice(r))
	})
	return "O que fazer em Salvador HOJE 👇\n\n" + list +
		"\n\n🔗 Agenda completa no link da bio\n\n#AgendaCulturalSalvador #SalvadorBA #EventosHoje"
}

// WeekendListCopy is the caption of the weekend list post.
func WeekendListCopy(records []events.Record) string {
	if len(records) == 0 {
		return "Nenhum evento encontrado para o fim de semana 😔\n\nMas temos muitos outros rolês incríveis na agenda!" + emptyFooter
	}
	list := numbered(records, func(r events.Record) string {
		return fmt.Sprintf("%s • %s • %s • %s", Weekday(r.Start), FormatTime(r.Start), venueOf(r), listPrice(r))
	})
	return "O que fazer em Salvador NESTE FIM DE SEMANA 🎉\n\n" + list +
		"\n\n🔗 Agenda completa no link da bio\n\n#FimDeSemana #SalvadorBA #AgendaCulturalSalvador"
}

// FreeEventsListCopy is the caption of the free events post.
func FreeEventsListCopy(records []events.Record) string {
	if len(records) == 0 {
		return "Nenhum evento gratuito encontrado para hoje 😔\n\nMas temos muitos outros rolês na agenda!" + emptyFooter
	}
	list := numbered(records, func(r events.Record) string {
		return fmt.Sprintf("📍 %s • %s", venueOf(r), FormatTime(r.Start))
	})
	return "ROLÊS GRATUITOS em Salvador hoje 💚\n\n" + list +
		"\n\n🔗 Mais eventos no link da bio\n\n#EventosGratuitos #SalvadorBA #AgendaCulturalSalvador #Gratis"
}
