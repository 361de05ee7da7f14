package models

type Workspace struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedTS int64  `json:"created_ts"`
}
