package topic

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
)

var curated = map[string][]string{
	"animals": {
		"Bengal Tiger", "Indian Elephant", "Snow Leopard", "One-horned Rhino", "Asiatic Lion",
		"Peacock", "King Cobra", "Red Panda", "Sloth Bear", "Mongoose", "Kangaroo", "Pangolin",
		"Camel", "Yak", "Parrot", "Eagle", "Owl", "Squirrel", "Monkey", "Horse",
	},
	"professions": {
		"Surgeon", "Dentist", "Pharmacist", "Nurse", "Software Engineer", "Data Analyst",
		"Chartered Accountant", "Lawyer", "Judge", "Firefighter", "News Anchor", "Film Director",
		"Fashion Designer", "Electrician", "Plumber", "Carpenter", "Tailor", "Barber", "Gardener",
	},
	"countries": {
		"India", "Nepal", "Sri Lanka", "Japan", "South Korea", "Thailand", "Singapore", "UAE",
		"France", "Germany", "Italy", "Spain", "USA", "Canada", "Brazil", "Australia", "Egypt",
		"Kenya", "Switzerland", "Norway", "Greece", "Turkey", "Portugal",
	},
	"fruits": {
		"Mango", "Banana", "Guava", "Papaya", "Pomegranate", "Watermelon", "Grapes", "Pineapple",
		"Chickoo", "Custard Apple", "Lychee", "Jackfruit", "Jamun", "Dragon Fruit", "Kiwi",
		"Fig", "Lemon", "Sweet Lime", "Coconut", "Strawberry",
	},
	"sports": {
		"Cricket", "Kabaddi", "Hockey", "Football", "Badminton", "Tennis", "Table Tennis",
		"Wrestling", "Boxing", "Archery", "Chess", "Carrom", "Kho-Kho", "Basketball",
		"Volleyball", "Golf", "Snooker", "Formula 1", "Swimming", "Cycling",
	},
	"foods": {
		"Samosa", "Jalebi", "Dhokla", "Vada Pav", "Pani Puri", "Pav Bhaji", "Idli", "Dosa",
		"Biryani", "Butter Chicken", "Paneer Tikka", "Chole Bhature", "Rajma Chawal", "Paratha",
		"Gulab Jamun", "Rasgulla", "Kulfi", "Lassi", "Poha", "Momos",
	},
	"superheroes": {
		"Shaktimaan", "Krrish", "Minnal Murali", "Nagraj", "Iron Man", "Spider-Man", "Batman",
		"Superman", "Wonder Woman", "Thor", "Hulk", "Captain America", "Black Panther",
		"Doctor Strange", "Flash", "Aquaman", "Wolverine", "Deadpool",
	},
	"movies": {
		"Sholay", "DDLJ", "Lagaan", "Dangal", "Don", "3 Idiots", "Queen", "Piku", "Andhadhun",
		"Drishyam", "Kahaani", "Baahubali 2", "RRR", "KGF: Chapter 2", "Jawan", "12th Fail",
		"Laapataa Ladies", "Stree", "Hera Pheri", "Chak De! India",
	},
}

var generic = []string{"Sun", "Moon", "Star", "Earth"}

// FallbackProvider draws two distinct items from a curated per-category list.
// Unknown categories use a small generic list.
type FallbackProvider struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last Pair
}

func NewFallbackProvider(rng *rand.Rand) *FallbackProvider {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &FallbackProvider{rng: rng}
}

// Categories lists the categories with a curated list.
func Categories() []string {
	out := make([]string, 0, len(curated))
	for k := range curated {
		out = append(out, k)
	}
	return out
}

func (f *FallbackProvider) GenerateTopics(ctx context.Context, req Request) (Pair, error) {
	choices, ok := curated[strings.ToLower(strings.TrimSpace(req.Category))]
	if !ok {
		choices = generic
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Small lists can only produce a handful of pairs; give up avoiding
	// repeats after a few draws rather than spin.
	var pair Pair
	for attempt := 0; attempt < 8; attempt++ {
		i := f.rng.IntN(len(choices))
		j := f.rng.IntN(len(choices) - 1)
		if j >= i {
			j++
		}
		pair = Pair{PlayerTopic: choices[i], ImposterTopic: choices[j]}
		if pair != f.last && pair != req.Previous {
			break
		}
	}
	f.last = pair
	return pair, nil
}
