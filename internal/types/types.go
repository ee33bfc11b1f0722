package types

// Result is the decoded answer of the recognition engine.
// Every field is always populated; missing values carry their defaults.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Name    string `json:"name"`
	Emotion string `json:"emotion"`
	Time    string `json:"time"`
}

// EngineRequest is the JSON payload sent to the Python worker for one recognition
type EngineRequest struct {
	ImagePath string `json:"image_path"`
	AssetPath string `json:"asset_path"`
}
