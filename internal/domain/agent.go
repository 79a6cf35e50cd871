package domain

// Agent — симулируемый актор песочницы. Неизменяем после создания,
// реестр агентов фиксирован (seed) и в рантайме не редактируется.
type Agent struct {
	ID          string `json:"id" yaml:"id"`                   // e.g. "invoice-bot"
	Name        string `json:"name" yaml:"name"`               // Человекочитаемое имя для ленты событий
	Icon        string `json:"icon" yaml:"icon"`               // Имя иконки для дашборда
	Description string `json:"description" yaml:"description"` // Чем занимается агент
	Color       string `json:"color" yaml:"color"`             // Цвет в UI (#RRGGBB)
}
