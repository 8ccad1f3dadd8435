package domain

// Extraction is the inference service's answer to a keyword extraction request.
type Extraction struct {
	Keywords   []string
	Confidence float64
}
