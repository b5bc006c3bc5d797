package set

import "time"

// Interface for an item storeable in the set
type Item interface {
	Key() string
	Value() interface{}
}

type StringItem string

func (item StringItem) Key() string {
	return string(item)
}

func (item StringItem) Value() interface{} {
	return string(item)
}

// Itemize wraps a key and an arbitrary value into an Item.
func Itemize(key string, value interface{}) Item {
	return &keyedItem{key, value}
}

type keyedItem struct {
	key   string
	value interface{}
}

func (item *keyedItem) Key() string {
	return item.key
}

func (item *keyedItem) Value() interface{} {
	return item.value
}

// Expire wraps an item so that it reads as removed once d elapses. Used for
// timed bans.
func Expire(item Item, d time.Duration) Item {
	return &ExpiringItem{
		Item: item,
		Time: time.Now().Add(d),
	}
}

type ExpiringItem struct {
	Item
	time.Time
}

func (item *ExpiringItem) Expired() bool {
	return time.Now().After(item.Time)
}

func (item *ExpiringItem) Value() interface{} {
	if item.Expired() {
		return nil
	}
	return item.Item.Value()
}
