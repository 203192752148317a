package cache

import (
	"container/list"
)

type LRUOpts struct {
	Size int
	// OnEvict is called after a capacity eviction (not after Delete).
	OnEvict func(key string, val any)
}

type entry struct {
	key string
	val any
}

type getReq struct {
	key  string
	resp chan getResp
}

type getResp struct {
	val any
	ok  bool
}

type putReq struct {
	key string
	val any
}

// LRU is a bounded cache evicting the least recently used entry. All
// operations are serialized through a single goroutine.
type LRU struct {
	getCh chan getReq
	putCh chan putReq
	delCh chan string
	lenCh chan chan int
}

func (L *LRU) Get(key string) (any, bool) {
	resp := make(chan getResp)
	L.getCh <- getReq{key: key, resp: resp}
	r := <-resp
	return r.val, r.ok
}

func (L *LRU) Put(key string, val any, _ ...PutOption) {
	L.putCh <- putReq{key: key, val: val}
}

func (L *LRU) Delete(key string) {
	L.delCh <- key
}

func (L *LRU) Len() int {
	resp := make(chan int)
	L.lenCh <- resp
	return <-resp
}

func NewLRU(opts LRUOpts) *LRU {
	if opts.Size <= 0 {
		opts.Size = 128
	}

	l := &LRU{
		getCh: make(chan getReq),
		putCh: make(chan putReq),
		delCh: make(chan string),
		lenCh: make(chan chan int),
	}

	go l.run(opts)

	return l
}

func (L *LRU) run(opts LRUOpts) {
	ll := list.New()
	cache := make(map[string]*list.Element)

	for {
		select {
		case req := <-L.getCh:
			if ele, ok := cache[req.key]; ok {
				ll.MoveToFront(ele)
				req.resp <- getResp{val: ele.Value.(*entry).val, ok: true}
			} else {
				req.resp <- getResp{ok: false}
			}
		case req := <-L.putCh:
			if ele, ok := cache[req.key]; ok {
				ll.MoveToFront(ele)
				ele.Value.(*entry).val = req.val
				continue
			}
			ele := ll.PushFront(&entry{key: req.key, val: req.val})
			cache[req.key] = ele
			if ll.Len() > opts.Size {
				last := ll.Back()
				if last != nil {
					ll.Remove(last)
					e := last.Value.(*entry)
					delete(cache, e.key)
					if opts.OnEvict != nil {
						opts.OnEvict(e.key, e.val)
					}
				}
			}
		case key := <-L.delCh:
			if ele, ok := cache[key]; ok {
				ll.Remove(ele)
				delete(cache, key)
			}
		case resp := <-L.lenCh:
			resp <- ll.Len()
		}
	}
}

var _ Cache = (*LRU)(nil)
