package mirror

import (
	"testing"

	"github.com/gogpu/canvas/scene"
)

func TestOfflineQueueOrder(t *testing.T) {
	var q OfflineQueue
	a := q.Push(scene.Delete("a"))
	online := q.NextSeq()
	b := q.Push(scene.Delete("b"))

	if !(a.Seq < online && online < b.Seq) {
		t.Errorf("seqs %d, %d, %d are not increasing", a.Seq, online, b.Seq)
	}
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}

	front, ok := q.Front()
	if !ok || front.Op.ID != "a" {
		t.Fatalf("Front() = %+v, %v", front, ok)
	}
	q.Pop()
	q.PushFront(front)
	if f, _ := q.Front(); f.Seq != a.Seq {
		t.Errorf("PushFront did not restore the edit, front seq %d", f.Seq)
	}

	p := q.Pending()
	if len(p) != 2 || p[0].Op.ID != "a" || p[1].Op.ID != "b" {
		t.Errorf("Pending() = %+v", p)
	}

	q.Pop()
	q.Pop()
	q.Pop()
	if q.Len() != 0 {
		t.Errorf("Len() = %d after draining", q.Len())
	}
	if _, ok := q.Front(); ok {
		t.Error("Front() on empty queue should report false")
	}
}

func TestOfflineQueueCopiesOps(t *testing.T) {
	var q OfflineQueue
	e := box("a", 0)
	op := scene.Insert(e)
	q.Push(op)
	op.Element.ZIndex = 9

	f, _ := q.Front()
	if f.Op.Element.ZIndex != 0 {
		t.Error("queue shares op storage with the caller")
	}
}
