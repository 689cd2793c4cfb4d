package layout

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestResolvePageBox(t *testing.T) {
	tests := []struct {
		name   string
		policy PageSize
		w, h   int
		want   Size
	}{
		{"letter ignores image", PageSizeLetter, 4000, 10, Size{612, 792}},
		{"letter tiny image", PageSizeLetter, 1, 1, Size{612, 792}},
		{"a4", PageSizeA4, 800, 600, Size{595.28, 841.89}},
		{"auto scales pixels", PageSizeAuto, 800, 600, Size{600, 450}},
		{"auto floors at one inch", PageSizeAuto, 50, 2000, Size{72, 1500}},
		{"auto floors both sides", PageSizeAuto, 10, 10, Size{72, 72}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolvePageBox(tt.policy, tt.w, tt.h)
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("ResolvePageBox() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestContentArea(t *testing.T) {
	assert.Equal(t, Size{588, 768}, ContentArea(Size{612, 792}, 12))
	assert.Equal(t, Size{612, 792}, ContentArea(Size{612, 792}, 0))
	// margin larger than half the page clamps instead of going negative
	assert.Equal(t, Size{1, 1}, ContentArea(Size{612, 792}, 500))
	assert.Equal(t, Size{1, 92}, ContentArea(Size{100, 200}, 54))
}

func TestFitRect(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		box  Size
		mode FitMode
		want Rect
	}{
		{"contain wide image", 200, 100, Size{100, 100}, Contain, Rect{0, 25, 100, 50}},
		{"contain tall image", 100, 200, Size{100, 100}, Contain, Rect{25, 0, 50, 100}},
		{"contain same ratio", 300, 600, Size{100, 200}, Contain, Rect{0, 0, 100, 200}},
		{"cover wide image overflows width", 200, 100, Size{100, 100}, Cover, Rect{-50, 0, 200, 100}},
		{"cover tall image overflows height", 100, 200, Size{100, 100}, Cover, Rect{0, -50, 100, 200}},
		{"cover same ratio", 300, 600, Size{100, 200}, Cover, Rect{0, 0, 100, 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FitRect(tt.w, tt.h, tt.box, tt.mode)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("FitRect() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFitRectInvalid(t *testing.T) {
	cases := []struct {
		w, h int
		box  Size
	}{
		{100, 0, Size{10, 10}},
		{0, 100, Size{10, 10}},
		{-1, 100, Size{10, 10}},
		{100, 100, Size{0, 10}},
		{100, 100, Size{10, math.NaN()}},
	}
	for _, c := range cases {
		_, err := FitRect(c.w, c.h, c.box, Contain)
		assert.True(t, errors.Is(err, ErrInvalidDimensions), "FitRect(%d, %d, %v)", c.w, c.h, c.box)
	}
}

func TestFitRectProperties(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		w := 1 + rnd.Intn(10000)
		h := 1 + rnd.Intn(10000)
		box := Size{Width: 1 + rnd.Float64()*2000, Height: 1 + rnd.Float64()*2000}

		c, err := FitRect(w, h, box, Contain)
		require.NoError(t, err)
		if c.Width > box.Width || c.Height > box.Height {
			t.Fatalf("contain %dx%d in %v exceeds box: %v", w, h, box, c)
		}
		if c.X < 0 || c.Y < 0 {
			t.Fatalf("contain %dx%d in %v has negative offset: %v", w, h, box, c)
		}

		v, err := FitRect(w, h, box, Cover)
		require.NoError(t, err)
		if v.Width < box.Width || v.Height < box.Height {
			t.Fatalf("cover %dx%d in %v does not fill box: %v", w, h, box, v)
		}
		if v.X > 0 || v.Y > 0 {
			t.Fatalf("cover %dx%d in %v has positive offset: %v", w, h, box, v)
		}
	}
}

func TestPlace(t *testing.T) {
	p, err := Place(PageSizeLetter, Contain, 12, 1000, 500)
	require.NoError(t, err)
	want := Placement{
		Page:    Size{612, 792},
		Content: Rect{12, 12, 588, 768},
		Image:   Rect{12, 12 + (768-294)/2.0, 588, 294},
	}
	if diff := cmp.Diff(want, p, approx); diff != "" {
		t.Errorf("Place() mismatch (-want +got):\n%s", diff)
	}

	// auto pages hug the image when there is no margin
	p, err = Place(PageSizeAuto, Cover, 0, 800, 600)
	require.NoError(t, err)
	if diff := cmp.Diff(Rect{0, 0, 600, 450}, p.Image, approx); diff != "" {
		t.Errorf("Place(auto) image mismatch (-want +got):\n%s", diff)
	}

	_, err = Place(PageSizeA4, Contain, 10, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestParse(t *testing.T) {
	for in, want := range map[string]PageSize{"a4": PageSizeA4, "LETTER": PageSizeLetter, " auto ": PageSizeAuto} {
		got, err := ParsePageSize(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePageSize("legal")
	assert.ErrorIs(t, err, ErrUnknownPageSize)

	f, err := ParseFitMode("Cover")
	require.NoError(t, err)
	assert.Equal(t, Cover, f)
	_, err = ParseFitMode("stretch")
	assert.ErrorIs(t, err, ErrUnknownFitMode)
}

func TestEnumJSON(t *testing.T) {
	type opts struct {
		Size PageSize `json:"size"`
		Fit  FitMode  `json:"fit"`
	}
	b, err := json.Marshal(opts{Size: PageSizeLetter, Fit: Cover})
	require.NoError(t, err)
	assert.JSONEq(t, `{"size":"letter","fit":"cover"}`, string(b))

	var got opts
	require.NoError(t, json.Unmarshal([]byte(`{"size":"auto","fit":"contain"}`), &got))
	assert.Equal(t, opts{Size: PageSizeAuto, Fit: Contain}, got)

	assert.Error(t, json.Unmarshal([]byte(`{"size":"a0"}`), &got))
}

func TestDownscale(t *testing.T) {
	w, h, ok := Downscale(4000, 3000, 2000)
	assert.True(t, ok)
	assert.Equal(t, 2000, w)
	assert.Equal(t, 1500, h)

	w, h, ok = Downscale(1200, 800, 2000)
	assert.False(t, ok)
	assert.Equal(t, 1200, w)
	assert.Equal(t, 800, h)

	w, h, ok = Downscale(10000, 3, 2000)
	assert.True(t, ok)
	assert.Equal(t, 2000, w)
	assert.Equal(t, 1, h)

	_, _, ok = Downscale(5000, 5000, 0)
	assert.False(t, ok)
}
