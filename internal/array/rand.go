package array

import (
	"math/rand"
)

// Rand is a bag that hands values back either from the front or, with a
// per-bag probability between a quarter and three quarters, from a random
// position.
type Rand[T any] struct {
	rng             *rand.Rand
	randpickpercent float64
	data            []T
}

func NewRand[T any](rng *rand.Rand) *Rand[T] {
	return &Rand[T]{
		rng:             rng,
		randpickpercent: 0.25 + rng.Float64()*0.5,
		data:            make([]T, 0),
	}
}

// RandPickPercent is the probability of a random pick, in [0, 100].
func (r *Rand[T]) RandPickPercent() float64 {
	return r.randpickpercent * 100
}

func (r *Rand[T]) Push(value T) {
	r.data = append(r.data, value)
}

func (r *Rand[T]) Pop() (T, bool) {
	randpickChance := r.rng.Float64()
	if randpickChance <= r.randpickpercent {
		return r.popRandom()
	}

	return r.popOrdered()
}

// Pop2 removes two values, or none if fewer than two are held.
func (r *Rand[T]) Pop2() (T, T, bool) {
	var a, b T
	if len(r.data) < 2 {
		return a, b, false
	}

	a, _ = r.Pop()
	b, _ = r.Pop()
	return a, b, true
}

func (r *Rand[T]) Len() int {
	return len(r.data)
}

// Each calls fn for every held value without removing it.
func (r *Rand[T]) Each(fn func(T)) {
	for _, v := range r.data {
		fn(v)
	}
}

// Drain removes every value, calling fn for each.
func (r *Rand[T]) Drain(fn func(T)) {
	data := r.data
	r.data = make([]T, 0)
	for _, v := range data {
		fn(v)
	}
}

func (r *Rand[T]) popOrdered() (T, bool) {
	var t T
	if len(r.data) == 0 {
		return t, false
	}

	t, r.data[0] = r.data[0], r.data[len(r.data)-1]
	r.data = r.data[:len(r.data)-1]
	return t, true
}

func (r *Rand[T]) popRandom() (T, bool) {
	var t T
	if len(r.data) == 0 {
		return t, false
	}

	i := r.rng.Intn(len(r.data))
	t, r.data[i] = r.data[i], r.data[len(r.data)-1]

	r.data = r.data[:len(r.data)-1]
	return t, true
}
