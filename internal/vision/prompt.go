package vision

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
)

// DateLayout is the day format exchanged with the model.
const DateLayout = "02/01/2006"

// BuildPrompt renders the extraction instructions. today anchors the year of
// headers that omit it; previousDate is the last date seen in the previous
// image of the same sequence, or empty for the first image.
func BuildPrompt(today time.Time, previousDate string) string {
	day := today.In(events.Local)
	sequence := "Esta é a primeira imagem da sequência"
	if previousDate != "" {
		sequence = "Data do último evento da imagem anterior: " + previousDate
	}

	var b strings.Builder
	b.WriteString("Analise esta imagem de post do Instagram e extraia TODOS os eventos culturais mencionados.\n\n")
	b.WriteString("CONTEXTO TEMPORAL E SEQUENCIAL:\n")
	fmt.Fprintf(&b, "- Data de hoje: %s\n", day.Format(DateLayout))
	fmt.Fprintf(&b, "- %s\n", sequence)
	b.WriteString("- As imagens são processadas em ORDEM CRONOLÓGICA (ordem de captura dos stories)\n")
	b.WriteString("- Leia em sequência: coluna esquerda, coluna direita, próxima imagem\n")
	b.WriteString("- Se NÃO houver novo cabeçalho de data, continue com a data anterior\n\n")
	b.WriteString("CABEÇALHOS DE DATA E LAYOUT:\n")
	b.WriteString(`- Os cabeçalhos têm o formato "SEXTA-FEIRA (30/01)", "SÁBADO (31/01)", "DOMINGO (01/02)"` + "\n")
	b.WriteString("- Antes de processar eventos, procure TODOS os cabeçalhos de data na imagem inteira\n")
	b.WriteString("- A imagem pode ter duas colunas, cada uma com seus próprios cabeçalhos\n")
	b.WriteString("- Um cabeçalho da coluna esquerda NÃO se aplica à coluna direita quando ela tem cabeçalho próprio\n")
	fmt.Fprintf(&b, "- As datas dos cabeçalhos vêm sem ano: use %d e ajuste o mês pela data de hoje\n", day.Year())
	b.WriteString("- Horários que voltam no tempo (21:00 e depois 11:00) indicam mudança de dia\n\n")
	b.WriteString("Para cada evento, extraia:\n")
	b.WriteString("- title: título do evento (máximo 100 caracteres)\n")
	b.WriteString("- date: data no formato DD/MM/YYYY\n")
	b.WriteString(`- time: horário no formato HH:MM (ex: "19:00")` + "\n")
	b.WriteString("- venue: local do evento\n")
	b.WriteString(`- price: preço ("Grátis", "Consulte" ou valor como "R$ 30")` + "\n")
	b.WriteString("- description: descrição adicional (opcional)\n\n")
	b.WriteString("Retorne APENAS um JSON válido com o array de eventos:\n")
	b.WriteString(`[{"title": "Nome do Evento", "date": "30/01/2026", "time": "19:00", "venue": "Local", "price": "Grátis"}]`)
	return b.String()
}
