package domain

import "time"

type PlayRecord struct {
	Hash      string    `json:"hash"`
	FileIndex int       `json:"fileIndex"`
	Title     string    `json:"title"`
	Poster    string    `json:"poster"`
	FilePath  string    `json:"filePath"`
	PlayURL   string    `json:"playUrl"`
	UpdatedAt time.Time `json:"updatedAt"`
}
