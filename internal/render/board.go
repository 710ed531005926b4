// Package render draws a board position as a PNG image.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-arena/internal/domain"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	squareSize = 64
	margin     = 20
	baseSize   = squareSize*8 + margin*2

	MinSize = 64
	MaxSize = 2048
)

var (
	lightSquare   = color.RGBA{233, 207, 163, 255}
	darkSquare    = color.RGBA{187, 136, 96, 255}
	frameColor    = color.RGBA{40, 43, 58, 255}
	coordColor    = color.RGBA{220, 224, 240, 255}
	lastMoveColor = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
)

// Options controls one rendering. Size is the edge length of the square
// output in pixels; Flip draws the board from black's side.
type Options struct {
	Size     int
	Flip     bool
	LastFrom string
	LastTo   string
}

type Renderer struct {
	defaultSize int
}

func New(defaultSize int) *Renderer {
	if defaultSize < MinSize || defaultSize > MaxSize {
		defaultSize = 480
	}
	return &Renderer{defaultSize: defaultSize}
}

// PNG renders fen. An empty fen renders the standard start position.
func (r *Renderer) PNG(ctx context.Context, fen string, opts Options) ([]byte, error) {
	size := opts.Size
	if size == 0 {
		size = r.defaultSize
	}
	if size < MinSize || size > MaxSize {
		return nil, domain.Validation("invalid_size", fmt.Sprintf("size must be between %d and %d", MinSize, MaxSize))
	}
	board, err := loadBoard(fen)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, baseSize, baseSize))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(frameColor), image.Point{}, xdraw.Src)
	origin := image.Pt(margin, margin)
	drawSquares(img, origin, opts.Flip)
	for _, name := range []string{opts.LastFrom, opts.LastTo} {
		if sq, ok := parseSquare(name); ok {
			xdraw.Draw(img, squareRect(sq, origin, opts.Flip), image.NewUniform(lastMoveColor), image.Point{}, xdraw.Over)
		}
	}
	if err := drawPieces(ctx, img, board, origin, opts.Flip); err != nil {
		return nil, err
	}
	drawCoordinates(img, origin, opts.Flip)

	out := image.Image(img)
	if size != baseSize {
		scaled := image.NewRGBA(image.Rect(0, 0, size, size))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)
		out = scaled
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func loadBoard(fen string) (*nchess.Board, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		fen = domain.StartFEN
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, domain.Validation("invalid_position", fmt.Sprintf("invalid FEN %q: %v", fen, err))
	}
	return nchess.NewGame(opt).Position().Board(), nil
}

// cell maps a screen cell to the square drawn there.
func cell(row, col int, flip bool) nchess.Square {
	file, rank := col, 7-row
	if flip {
		file, rank = 7-col, row
	}
	return nchess.NewSquare(nchess.File(file), nchess.Rank(rank))
}

func squareRect(sq nchess.Square, origin image.Point, flip bool) image.Rectangle {
	col, row := int(sq.File()), 7-int(sq.Rank())
	if flip {
		col, row = 7-int(sq.File()), int(sq.Rank())
	}
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func drawSquares(dst *image.RGBA, origin image.Point, flip bool) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			sq := cell(row, col, flip)
			xdraw.Draw(dst, squareRect(sq, origin, flip), image.NewUniform(squareColor(sq)), image.Point{}, xdraw.Src)
		}
	}
}

func drawPieces(ctx context.Context, dst *image.RGBA, board *nchess.Board, origin image.Point, flip bool) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := renderPieceImage(piece, squareSize)
		if err != nil {
			return err
		}
		xdraw.Draw(dst, squareRect(sq, origin, flip), img, image.Point{}, xdraw.Over)
	}
	return nil
}

func drawCoordinates(dst *image.RGBA, origin image.Point, flip bool) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(coordColor), Face: face}
	ascent := face.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		sq := cell(i, i, flip)
		rank := sq.Rank().String()
		file := sq.File().String()
		center := origin.Y + i*squareSize + squareSize/2
		drawCentered(d, rank, margin/2, center+ascent/2)
		center = origin.X + i*squareSize + squareSize/2
		drawCentered(d, file, center, origin.Y+8*squareSize+margin/2+ascent/2)
	}
}

func drawCentered(d *font.Drawer, text string, centerX, baseline int) {
	width := d.MeasureString(text).Round()
	d.Dot = fixed.P(centerX-width/2, baseline)
	d.DrawString(text)
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func parseSquare(s string) (nchess.Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}
