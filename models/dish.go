package models

// Nutrition holds the per-serving nutrition estimate returned by the vision model.
type Nutrition struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Carbs    int `json:"carbs"`
	Fat      int `json:"fat"`
}

// DishData is the structured identification result for a scanned dish.
type DishData struct {
	Name        string    `json:"name"`
	NameKorean  string    `json:"nameKorean,omitempty"`
	Description string    `json:"description,omitempty"`
	Cuisine     string    `json:"cuisine,omitempty"`
	IsKorean    bool      `json:"isKorean"`
	Language    string    `json:"language,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Nutrition   Nutrition `json:"nutrition"`
}

// Identification mirrors the JSON document the vision model is prompted to
// return. Field names follow the model contract, not Go conventions.
type Identification struct {
	DishDetected   bool       `json:"dish_detected"`
	IsKorean       bool       `json:"is_korean"`
	DishName       string     `json:"dish_name,omitempty"`
	DishNameKorean string     `json:"dish_name_korean,omitempty"`
	Cuisine        string     `json:"cuisine,omitempty"`
	Confidence     float64    `json:"confidence,omitempty"`
	Description    string     `json:"description,omitempty"`
	Alternatives   []string   `json:"alternatives,omitempty"`
	Nutrition      *Nutrition `json:"nutrition,omitempty"`
	Message        string     `json:"message,omitempty"`
}

// ToDishData reshapes a model identification into the client-facing form.
func (id *Identification) ToDishData(language string) DishData {
	d := DishData{
		Name:        id.DishName,
		NameKorean:  id.DishNameKorean,
		Description: id.Description,
		Cuisine:     id.Cuisine,
		IsKorean:    id.IsKorean,
		Language:    language,
		Confidence:  id.Confidence,
	}
	if id.Nutrition != nil {
		d.Nutrition = *id.Nutrition
	}
	return d
}

// IdentifyRequest is the payload accepted by the identify endpoint.
type IdentifyRequest struct {
	ImageData      string `json:"imageData"`
	TargetLanguage string `json:"targetLanguage"`
	UserID         string `json:"userId"`
}
