package domain

import "time"

const (
	DefaultRating = 1200
	MinRating     = 100
)

type Player struct {
	ID        string             `json:"id"`
	Handle    string             `json:"handle"`
	Ratings   map[Discipline]int `json:"ratings"`
	Played    int                `json:"played"`
	Won       int                `json:"won"`
	Drawn     int                `json:"drawn"`
	Lost      int                `json:"lost"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewPlayer returns a player seeded with the default rating in every discipline.
func NewPlayer(id, handle string, now time.Time) *Player {
	p := &Player{ID: id, Handle: handle, Ratings: make(map[Discipline]int, len(Disciplines)), CreatedAt: now, UpdatedAt: now}
	for _, d := range Disciplines {
		p.Ratings[d] = DefaultRating
	}
	return p
}

func (p *Player) Rating(d Discipline) int {
	if p == nil || p.Ratings == nil {
		return DefaultRating
	}
	if r, ok := p.Ratings[d]; ok {
		return r
	}
	return DefaultRating
}

func (p *Player) SetRating(d Discipline, r int) {
	if p.Ratings == nil {
		p.Ratings = make(map[Discipline]int, len(Disciplines))
	}
	if r < MinRating {
		r = MinRating
	}
	p.Ratings[d] = r
}

func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Ratings = make(map[Discipline]int, len(p.Ratings))
	for k, v := range p.Ratings {
		cp.Ratings[k] = v
	}
	return &cp
}
