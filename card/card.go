// Package card generates collectible trading cards from a photo: the photo is
// analyzed for an element type and a special ability, redrawn as retro artwork,
// composited onto a card and stored. Progress is reported as a stream of events.
package card

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
)

// Type is the element type of a card.
type Type string

const (
	TypeFire     Type = "Fire"
	TypeWater    Type = "Water"
	TypeGrass    Type = "Grass"
	TypeElectric Type = "Electric"
	TypePsychic  Type = "Psychic"
	TypeDark     Type = "Dark"
	TypeFairy    Type = "Fairy"
	TypeFighting Type = "Fighting"
	TypeNormal   Type = "Normal"
	TypeDragon   Type = "Dragon"
	TypeIce      Type = "Ice"
	TypeRock     Type = "Rock"
	TypeGround   Type = "Ground"
	TypeFlying   Type = "Flying"
	TypeBug      Type = "Bug"
	TypePoison   Type = "Poison"
	TypeGhost    Type = "Ghost"
	TypeSteel    Type = "Steel"
)

// Types lists every element type in a stable order.
var Types = []Type{
	TypeFire, TypeWater, TypeGrass, TypeElectric, TypePsychic, TypeDark,
	TypeFairy, TypeFighting, TypeNormal, TypeDragon, TypeIce, TypeRock,
	TypeGround, TypeFlying, TypeBug, TypePoison, TypeGhost, TypeSteel,
}

var typeColors = map[Type]string{
	TypeFire:     "#F08030",
	TypeWater:    "#6890F0",
	TypeGrass:    "#78C850",
	TypeElectric: "#F8D030",
	TypePsychic:  "#F85888",
	TypeDark:     "#705848",
	TypeFairy:    "#EE99AC",
	TypeFighting: "#C03028",
	TypeNormal:   "#A8A878",
	TypeDragon:   "#7038F8",
	TypeIce:      "#98D8D8",
	TypeRock:     "#B8A038",
	TypeGround:   "#E0C068",
	TypeFlying:   "#A890F0",
	TypeBug:      "#A8B820",
	TypePoison:   "#A040A0",
	TypeGhost:    "#705898",
	TypeSteel:    "#B8B8D0",
}

// ErrUnknownType is returned for a type outside Types.
var ErrUnknownType = errors.New("unknown card type")

// Valid reports whether t is one of Types.
func (t Type) Valid() bool {
	_, ok := typeColors[t]
	return ok
}

// Color returns the hex colour of t, or the Normal colour for an unknown type.
func (t Type) Color() string {
	if c, ok := typeColors[t]; ok {
		return c
	}
	return typeColors[TypeNormal]
}

// ParseType converts s into a Type. Matching is exact.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Request is one card to generate.
type Request struct {
	Image    []byte
	Name     string
	Birthday string
}

// Analysis is what the analyzer reads from a photo.
type Analysis struct {
	Type                      Type   `json:"type"`
	SpecialAbility            string `json:"specialAbility"`
	SpecialAbilityDescription string `json:"specialAbilityDescription"`
}

// Details is everything printed on a card.
type Details struct {
	Artwork                   []byte
	Name                      string
	Birthday                  string
	Type                      Type
	SpecialAbility            string
	SpecialAbilityDescription string
}

// Analyzer derives the card type and ability from a photo.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) (Analysis, error)
}

// Artist redraws a photo as card artwork.
type Artist interface {
	Draw(ctx context.Context, image []byte, t Type) ([]byte, error)
}

// Renderer composites a finished card image.
type Renderer interface {
	Render(ctx context.Context, d Details) ([]byte, error)
}

// Store persists a rendered card and returns its public URL.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// DataURI encodes image as a base64 data URI with its sniffed content type.
func DataURI(image []byte) string {
	return "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}
