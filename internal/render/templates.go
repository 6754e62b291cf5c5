package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// Canvas sizes in CSS pixels.
const (
	CardWidth   = 1080
	CardHeight  = 1080
	StoryWidth  = 1080
	StoryHeight = 1920

	// MaxStoryEvents caps the entries drawn on one story.
	MaxStoryEvents = 5

	// Handle is printed in the footer of every image.
	Handle = "@agendaculturalssa"
)

// CardType selects the card layout.
type CardType string

// Card layouts.
const (
	CardSingle CardType = "single"
	CardList   CardType = "list"
)

// Card is one square post image.
type Card struct {
	Type     CardType
	Title    string
	Venue    string
	Date     string
	Time     string
	Price    string
	ImageURL string
}

func (c Card) withDefaults() Card {
	if c.Type != CardList {
		c.Type = CardSingle
	}
	if strings.TrimSpace(c.Title) == "" {
		c.Title = "Evento em Salvador"
	}
	if strings.TrimSpace(c.Venue) == "" {
		c.Venue = "Salvador"
	}
	if strings.TrimSpace(c.Price) == "" {
		c.Price = "Consulte"
	}
	return c
}

// StoryType selects the story theme.
type StoryType string

// Story themes.
const (
	StoryToday     StoryType = "today"
	StoryWeekend   StoryType = "weekend"
	StoryFree      StoryType = "free"
	StoryHighlight StoryType = "highlight"
)

// StoryTheme is the heading and gradient of a story type.
type StoryTheme struct {
	Title  string
	Color1 string
	Color2 string
}

var storyThemes = map[StoryType]StoryTheme{
	StoryToday:     {Title: "HOJE", Color1: "#667eea", Color2: "#764ba2"},
	StoryWeekend:   {Title: "FIM DE SEMANA", Color1: "#f093fb", Color2: "#f5576c"},
	StoryFree:      {Title: "GRATUITOS", Color1: "#4ade80", Color2: "#22c55e"},
	StoryHighlight: {Title: "DESTAQUE", Color1: "#fbbf24", Color2: "#f59e0b"},
}

// ParseStoryType maps a query value to a StoryType; unknown values are today.
func ParseStoryType(s string) StoryType {
	t := StoryType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := storyThemes[t]; ok {
		return t
	}
	return StoryToday
}

// Theme returns the theme of t.
func (t StoryType) Theme() StoryTheme {
	if theme, ok := storyThemes[t]; ok {
		return theme
	}
	return storyThemes[StoryToday]
}

// StoryItem is one entry of a story.
type StoryItem struct {
	Title string `json:"title"`
	Date  string `json:"date"`
	Time  string `json:"time"`
	Venue string `json:"venue"`
	Price string `json:"price"`
}

var placeholderItem = StoryItem{Title: "Sem eventos", Venue: "Salvador", Date: "Hoje", Time: "00:00", Price: "Grátis"}

const baseStyle = `*{box-sizing:border-box;margin:0;padding:0}
html,body{width:{{.Width}}px;height:{{.Height}}px;overflow:hidden}
body{font-family:"Helvetica Neue",Arial,"Noto Color Emoji",sans-serif}`

var cardTemplate = template.Must(template.New("card").Parse(`<!DOCTYPE html>
<html lang="pt-BR"><head><meta charset="utf-8"><style>` + baseStyle + `
.list{display:flex;flex-direction:column;height:100%;padding:60px;position:relative;background:linear-gradient(135deg,#f5f5f0 0%,#e8e8e0 100%)}
.circle{position:absolute;border-radius:50%}
.c1{top:-100px;right:-100px;width:350px;height:350px;background:linear-gradient(135deg,#ff6b35 0%,#f7931e 100%);opacity:.8}
.c2{bottom:-120px;left:-120px;width:400px;height:400px;background:linear-gradient(135deg,#ffc107 0%,#ff9800 100%);opacity:.7}
.center{display:flex;flex:1;flex-direction:column;align-items:center;justify-content:center;z-index:10}
.agenda{font-size:120px;font-weight:bold;color:#ff6b35;letter-spacing:8px;text-transform:uppercase}
.subtitle{font-size:72px;font-style:italic;color:#333;margin-bottom:60px}
.badge{display:flex;align-items:center;gap:20px;background:rgba(255,255,255,.9);padding:30px 60px;border-radius:20px}
.badge b{font-size:80px;color:#ff6b35}.badge span{font-size:42px;color:#333;font-weight:600}
.single{display:flex;flex-direction:column;height:100%;padding:80px;position:relative;color:#fff;
background:{{if .Card.ImageURL}}#1a1a1a{{else}}linear-gradient(135deg,#667eea 0%,#764ba2 50%,#f093fb 100%){{end}}}
.bg{position:absolute;inset:0;width:100%;height:100%;object-fit:cover;opacity:.45}
.content{display:flex;flex:1;flex-direction:column;justify-content:flex-end;gap:32px;z-index:10}
.title{font-size:76px;font-weight:800;line-height:1.2}
.info{display:flex;flex-direction:column;gap:16px;font-size:36px}
.info div{background:rgba(255,255,255,.18);padding:18px 28px;border-radius:16px}
.footer{display:flex;justify-content:center;font-size:32px;font-weight:600;color:{{if eq .Card.Type "list"}}#333{{else}}#fff{{end}};z-index:10}
</style></head><body>
{{- if eq .Card.Type "list"}}
<div class="list">
<div class="circle c1"></div><div class="circle c2"></div>
<div class="center">
<div class="agenda">AGENDA</div>
<div class="subtitle">{{.Lower}}</div>
<div class="badge"><b>{{.Count}}</b><span>eventos</span></div>
</div>
<div class="footer">{{.Handle}}</div>
</div>
{{- else}}
<div class="single">
{{- if .Card.ImageURL}}<img class="bg" src="{{.Card.ImageURL}}" alt="">{{end}}
<div class="content">
<div class="title">{{.Card.Title}}</div>
<div class="info">
{{- if .Card.Date}}<div>📅 {{.Card.Date}}{{if .Card.Time}} • {{.Card.Time}}{{end}}</div>{{end}}
<div>📍 {{.Card.Venue}}</div>
<div>🎟️ {{.Card.Price}}</div>
</div>
</div>
<div class="footer">{{.Handle}}</div>
</div>
{{- end}}
</body></html>`))

var storyTemplate = template.Must(template.New("story").Parse(`<!DOCTYPE html>
<html lang="pt-BR"><head><meta charset="utf-8"><style>` + baseStyle + `
.story{display:flex;flex-direction:column;height:100%;padding:60px 40px;color:#fff;
background:linear-gradient(to bottom,{{.Theme.Color1}},{{.Theme.Color2}})}
h1{font-size:64px;font-weight:bold;margin-bottom:40px;text-align:center}
.events{display:flex;flex-direction:column;gap:20px}
.event{background:rgba(255,255,255,.2);padding:20px;border-radius:16px}
.event b{display:block;font-size:28px;margin-bottom:10px}
.event p{font-size:20px}
.footer{margin-top:auto;font-size:28px;text-align:center}
</style></head><body>
<div class="story">
<h1>{{.Theme.Title}}</h1>
<div class="events">
{{- range .Items}}
<div class="event"><b>{{.Title}}</b><p>{{.Date}} - {{.Time}}</p><p>{{.Venue}}</p></div>
{{- end}}
</div>
<div class="footer">{{.Handle}}</div>
</div>
</body></html>`))

type canvas struct {
	Width  int
	Height int
	Handle string
}

// CardHTML renders the HTML document of a card.
func CardHTML(c Card) (string, error) {
	c = c.withDefaults()
	count := c.Venue
	if fields := strings.Fields(count); len(fields) > 0 {
		count = fields[0]
	}
	data := struct {
		canvas
		Card  Card
		Lower string
		Count string
	}{
		canvas: canvas{Width: CardWidth, Height: CardHeight, Handle: Handle},
		Card:   c,
		Lower:  strings.ToLower(c.Title),
		Count:  count,
	}
	var buf bytes.Buffer
	if err := cardTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render card template: %w", err)
	}
	return buf.String(), nil
}

// StoryHTML renders the HTML document of a story. At most MaxStoryEvents
// items are drawn; an empty list draws a placeholder entry.
func StoryHTML(kind StoryType, items []StoryItem) (string, error) {
	if len(items) == 0 {
		items = []StoryItem{placeholderItem}
	}
	if len(items) > MaxStoryEvents {
		items = items[:MaxStoryEvents]
	}
	data := struct {
		canvas
		Theme StoryTheme
		Items []StoryItem
	}{
		canvas: canvas{Width: StoryWidth, Height: StoryHeight, Handle: Handle},
		Theme:  kind.Theme(),
		Items:  items,
	}
	var buf bytes.Buffer
	if err := storyTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render story template: %w", err)
	}
	return buf.String(), nil
}
