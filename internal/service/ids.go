package service

import "github.com/google/uuid"

func newDocumentID() string {
	return uuid.NewString()
}

func newQueryID() string {
	return uuid.NewString()
}
