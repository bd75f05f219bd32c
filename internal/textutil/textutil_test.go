package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase passthrough", "buscar", "buscar"},
		{"uppercase", "BUSCAR", "buscar"},
		{"accents stripped", "Búscar", "buscar"},
		{"trims whitespace", "  número  ", "numero"},
		{"enye preserved", "Año", "año"},
		{"decomposed enye preserved", "An\u0303o", "año"},
		{"enye with other accents", "Señoría", "señoria"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fold(tt.input))
		})
	}
}

func TestContainsFold(t *testing.T) {
	tests := []struct {
		name   string
		cell   string
		needle string
		want   bool
	}{
		{"exact", "12345", "12345", true},
		{"needle inside cell", "CUI-12345-X", "12345", true},
		{"cell inside needle", "12345", "CUI-12345-X", true},
		{"accent insensitive", "José Pérez", "jose", true},
		{"enye matches enye", "Año Fiscal", "año", true},
		{"enye is a distinct letter", "año", "ano", false},
		{"no match", "12345", "99999", false},
		{"empty cell", "", "12345", false},
		{"empty needle", "12345", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsFold(tt.cell, tt.needle))
		})
	}
}

func TestParseIndexList(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []int
	}{
		{"comma separated", "1,3", []int{1, 3}},
		{"space separated", "1 3 4", []int{1, 3, 4}},
		{"mixed separators", "1, 3 ,4", []int{1, 3, 4}},
		{"single", "2", []int{2}},
		{"sentence is not a selection", "dame el 1 por favor", nil},
		{"trailing garbage", "1,3,x", nil},
		{"empty", "", nil},
		{"only separators", " , ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseIndexList(tt.input))
		})
	}
}

func TestStem(t *testing.T) {
	assert.Equal(t, "inversiones", Stem("inversiones.xlsx"))
	assert.Equal(t, "reporte mensual", Stem("reporte mensual.xls"))
	assert.Equal(t, "datos", Stem("/tmp/uploads/datos.xlsx"))
	assert.Equal(t, "sinextension", Stem("sinextension"))
}
