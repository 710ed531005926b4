package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece glyphs on a 45x45 viewBox. %[1]s is the body fill, %[2]s the outline.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="14" r="5.5" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>` +
		`<path d="M 16 36 L 29 36 L 26 20 L 19 20 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>` +
		`<rect x="12" y="35" width="21" height="5" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
	nchess.Rook: `<path d="M 11 9 L 15 9 L 15 12 L 20 12 L 20 9 L 25 9 L 25 12 L 30 12 L 30 9 L 34 9 L 34 16 L 31 19 L 31 31 L 34 34 L 34 39 L 11 39 L 11 34 L 14 31 L 14 19 L 11 16 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
	nchess.Knight: `<path d="M 22 10 C 32 11 37 18 36 39 L 15 39 C 15 30 25 32.5 23 18 C 20 21 17 24 13 25 C 10 25 8 23 9 20 C 12 16 16 13 22 10 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>` +
		`<circle cx="16" cy="17" r="1.5" fill="%[2]s"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="8" r="2.5" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>` +
		`<path d="M 22.5 11 C 30 16 31 24 27 29 L 18 29 C 14 24 15 16 22.5 11 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>` +
		`<rect x="15" y="31" width="15" height="4" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>` +
		`<path d="M 9 39 C 14 37 19 38 22.5 35.5 C 26 38 31 37 36 39 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
	nchess.Queen: `<path d="M 9 26 L 12 12 L 17 23 L 22.5 9 L 28 23 L 33 12 L 36 26 C 33 30 31 31 31 34 L 14 34 C 14 31 12 30 9 26 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>` +
		`<circle cx="12" cy="11" r="2" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>` +
		`<circle cx="22.5" cy="8" r="2" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>` +
		`<circle cx="33" cy="11" r="2" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>` +
		`<rect x="12" y="34" width="21" height="5" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
	nchess.King: `<path d="M 21 3 L 24 3 L 24 6 L 27 6 L 27 9 L 24 9 L 24 13 L 21 13 L 21 9 L 18 9 L 18 6 L 21 6 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>` +
		`<path d="M 22.5 14 C 32 14 38 19 35 27 L 32 34 L 13 34 L 10 27 C 7 19 13 14 22.5 14 Z" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>` +
		`<rect x="12" y="34" width="21" height="5" fill="%[1]s" stroke="%[2]s" stroke-width="1.5"/>`,
}

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func pieceSVG(piece nchess.Piece) (string, error) {
	shape, ok := pieceShapes[piece.Type()]
	if !ok {
		return "", fmt.Errorf("no glyph for piece %v", piece)
	}
	fill, stroke := "#f8f8f4", "#1d1d1d"
	if piece.Color() == nchess.Black {
		fill, stroke = "#262626", "#0a0a0a"
		if piece.Type() == nchess.Knight {
			// keep the eye light on a dark body
			shape = strings.Replace(shape, `r="1.5" fill="%[2]s"`, `r="1.5" fill="#f8f8f4"`, 1)
		}
	}
	return `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">` +
		fmt.Sprintf(shape, fill, stroke) + `</svg>`, nil
}

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	src, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()
	return img, nil
}
