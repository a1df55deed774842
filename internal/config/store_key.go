package config

import (
	"fmt"
)

type StoreKeyStruct struct{}

func NewStoreKeyStruct() *StoreKeyStruct {
	return &StoreKeyStruct{}
}

// TimerStartKey returns the durable-store key holding the wall-clock start
// timestamp (epoch milliseconds) for a content item's attempt. The key is
// scoped per item id so concurrently open items never collide.
func (r *StoreKeyStruct) TimerStartKey(itemID string) string {
	return fmt.Sprintf("exam_start_timestamp_%s", itemID)
}

// SessionAnswersKey returns the durable-store key for the answer mirror of a
// content item: a hash of question number to answer JSON.
func (r *StoreKeyStruct) SessionAnswersKey(itemID string) string {
	return fmt.Sprintf("session:%s:answers", itemID)
}

var StoreKey = NewStoreKeyStruct()
