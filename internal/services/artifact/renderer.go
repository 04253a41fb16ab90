// Package artifact renders the QR code and PDF that make up an issued ticket.
package artifact

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"
	"golang.org/x/crypto/blake2b"

	"tixhub/internal/status"
	"tixhub/models"
)

const (
	qrPrefix = "TIXHUB"
	qrSize   = 256
	qrSep    = "|"
)

// Renderer is stateless apart from the optional signing key and safe for concurrent use.
type Renderer struct {
	key []byte
}

func NewRenderer(signingKey string) (*Renderer, error) {
	if len(signingKey) > blake2b.Size {
		return nil, fmt.Errorf("artifact: signing key longer than %d bytes", blake2b.Size)
	}
	r := &Renderer{}
	if signingKey != "" {
		r.key = []byte(signingKey)
	}
	return r, nil
}

// QRContent is the text encoded in the ticket QR code.
func (r *Renderer) QRContent(buyerName, eventName string) (string, error) {
	payload := strings.Join([]string{qrPrefix, buyerName, eventName}, qrSep)
	if r.key == nil {
		return payload, nil
	}
	stamp, err := r.stamp(payload)
	if err != nil {
		return "", err
	}
	return payload + qrSep + stamp, nil
}

// VerifyQRContent reports whether content was produced by a renderer holding the same key.
func (r *Renderer) VerifyQRContent(content string) bool {
	if r.key == nil {
		return strings.HasPrefix(content, qrPrefix+qrSep)
	}
	i := strings.LastIndex(content, qrSep)
	if i < 0 {
		return false
	}
	want, err := r.stamp(content[:i])
	if err != nil {
		return false
	}
	return want == content[i+1:]
}

func (r *Renderer) stamp(payload string) (string, error) {
	h, err := blake2b.New256(r.key)
	if err != nil {
		return "", err
	}
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil)[:16]), nil
}

// RenderQRCode encodes the buyer and event names into a PNG.
func (r *Renderer) RenderQRCode(buyerName, eventName string) ([]byte, error) {
	if strings.TrimSpace(buyerName) == "" || strings.TrimSpace(eventName) == "" {
		return nil, status.E(status.KindRender, "qr code needs buyer and event", nil)
	}
	content, err := r.QRContent(buyerName, eventName)
	if err != nil {
		return nil, status.E(status.KindRender, "sign qr code", err)
	}
	img, err := qrcode.Encode(content, qrcode.Medium, qrSize)
	if err != nil {
		return nil, status.E(status.KindRender, "encode qr code", err)
	}
	return img, nil
}

// RenderTicketPDF lays out a one page A4 ticket with the QR code embedded.
func (r *Renderer) RenderTicketPDF(d models.TicketDetails, qr []byte) ([]byte, error) {
	if d.Event == "" || d.OrderNumber == "" {
		return nil, status.E(status.KindRender, "ticket details incomplete", nil)
	}
	if len(qr) == 0 {
		return nil, status.E(status.KindRender, "qr code missing", nil)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(qr)); err != nil {
		return nil, status.E(status.KindRender, "qr code is not a png", err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("e-Ticket "+d.OrderNumber, true)
	pdf.SetAuthor("Tixhub", true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 14, tr(d.Event), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, tr(d.TicketType), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qr))
	pageW, _ := pdf.GetPageSize()
	const qrW = 70.0
	pdf.ImageOptions("qr", (pageW-qrW)/2, pdf.GetY(), qrW, qrW, false, opts, 0, "")
	pdf.SetY(pdf.GetY() + qrW + 6)

	rows := [][2]string{
		{"Date", d.Date},
		{"Time", d.Time},
		{"Location", d.Location},
		{"Name", d.Buyer},
		{"Order", d.OrderNumber},
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(40, 9, row[0], "B", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 9, tr(row[1]), "B", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "Present this QR code at the entrance. Each code admits one person.", "", "C", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, status.E(status.KindRender, "write ticket pdf", err)
	}
	if buf.Len() == 0 {
		return nil, status.E(status.KindRender, "write ticket pdf", errors.New("empty document"))
	}
	return buf.Bytes(), nil
}
