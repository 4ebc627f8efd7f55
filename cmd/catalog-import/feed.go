package main

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/boutique-pos/internal/domain/product"
)

const maxLineSize = 1 << 20

// errInvalidLine marks a feed line that parsed but cannot be imported.
var errInvalidLine = errors.New("invalid feed line")

// feedStats counts what happened to the lines of one feed.
type feedStats struct {
	lines   uint64
	invalid uint64
}

// streamFeed opens a gzip-compressed JSON-lines feed and calls fn for each
// valid product. Invalid lines are counted and skipped.
func streamFeed(ctx context.Context, path string, fn func(p product.Product)) (feedStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return feedStats{}, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return feedStats{}, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	stats, err := scanFeed(ctx, gz, fn)
	if err != nil {
		return stats, errors.Wrapf(err, "scan %s", path)
	}
	return stats, nil
}

func scanFeed(ctx context.Context, r io.Reader, fn func(p product.Product)) (feedStats, error) {
	var stats feedStats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		stats.lines++

		p, err := decodeFeedLine(line)
		if err != nil {
			stats.invalid++
			continue
		}
		fn(p)
	}

	return stats, scanner.Err()
}

// decodeFeedLine parses one product record. Unit defaults to adet and
// isActive to true.
func decodeFeedLine(line []byte) (product.Product, error) {
	p := product.Product{
		Unit:     product.UnitPiece,
		IsActive: true,
	}

	d := jx.DecodeBytes(line)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Str()
		case "barcode":
			p.Barcode, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "purchasePrice":
			p.PurchasePrice, err = decodeDecimal(d)
		case "salePrice":
			p.SalePrice, err = decodeDecimal(d)
		case "stock":
			p.Stock, err = d.Int()
		case "minStock":
			p.MinStock, err = d.Int()
		case "unit":
			var unit string
			unit, err = d.Str()
			p.Unit = product.Unit(unit)
		case "shelfLocation":
			p.ShelfLocation, err = d.Str()
		case "supplierId":
			p.SupplierID, err = d.Str()
		case "isActive":
			p.IsActive, err = d.Bool()
		case "material":
			p.Material, err = d.Str()
		case "brand":
			p.Brand, err = d.Str()
		case "season":
			var season string
			season, err = d.Str()
			p.Season = product.Season(season)
		case "pattern":
			p.Pattern, err = d.Str()
		case "careInstructions":
			p.CareInstructions, err = d.Str()
		case "sizes":
			err = d.Arr(func(d *jx.Decoder) error {
				s, err := decodeSize(d)
				if err != nil {
					return err
				}
				p.Sizes = append(p.Sizes, s)
				return nil
			})
		case "colors":
			err = d.Arr(func(d *jx.Decoder) error {
				c, err := decodeColor(d)
				if err != nil {
					return err
				}
				p.Colors = append(p.Colors, c)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return product.Product{}, errors.Wrap(err, "decode")
	}

	switch {
	case p.Barcode == "":
		return product.Product{}, errors.Wrap(errInvalidLine, "barcode missing")
	case p.Name == "":
		return product.Product{}, errors.Wrap(errInvalidLine, "name missing")
	case !p.SalePrice.IsPositive():
		return product.Product{}, errors.Wrap(errInvalidLine, "sale price must be positive")
	case p.Stock < 0:
		return product.Product{}, errors.Wrap(errInvalidLine, "stock must not be negative")
	}
	return p, nil
}

func decodeSize(d *jx.Decoder) (product.SizeStock, error) {
	var s product.SizeStock
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "size":
			s.Size, err = d.Str()
		case "stock":
			s.Stock, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return s, err
}

func decodeColor(d *jx.Decoder) (product.ColorStock, error) {
	var c product.ColorStock
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			c.Name, err = d.Str()
		case "hexCode":
			c.HexCode, err = d.Str()
		case "stock":
			c.Stock, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return c, err
}

// decodeDecimal accepts both "12.50" and 12.50.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	}
}
