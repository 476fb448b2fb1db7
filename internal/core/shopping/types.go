package shopping

import (
	"context"
)

// Listing 搜尋結果中的一個商品
type Listing struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Price string `json:"price"`
}

// Browser 零售搜尋來源，每批次開啟一個 Session
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Session 一次批次使用的搜尋連線，使用完畢必須 Close。
// 多個 worker 會同時呼叫 Search。
type Session interface {
	Search(ctx context.Context, query string) ([]Listing, error)
	Close() error
}
