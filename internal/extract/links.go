package extract

import (
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/nao1215/pdfaudit/internal/model"
)

// pageLinks returns the URI link annotations of a page in annotation order.
// Links to named destinations or other actions are not hyperlinks and are left out.
func pageLinks(p pdf.Page, pageNum int) []model.Link {
	annots := p.V.Key("Annots")
	var links []model.Link
	for i := 0; i < annots.Len(); i++ {
		a := annots.Index(i)
		if a.Key("Subtype").Name() != "Link" {
			continue
		}
		action := a.Key("A")
		if action.Key("S").Name() != "URI" {
			continue
		}
		uri := strings.TrimSpace(action.Key("URI").RawString())
		if uri == "" {
			continue
		}
		links = append(links, model.Link{
			Page: pageNum,
			Seq:  len(links),
			URL:  uri,
			Area: rectFromArray(a.Key("Rect")),
		})
	}
	return links
}

// rectFromArray reads a PDF rectangle array [llx lly urx ury].
func rectFromArray(v pdf.Value) model.Rect {
	if v.Len() != 4 {
		return model.Rect{}
	}
	return model.NewRect(v.Index(0).Float64(), v.Index(1).Float64(), v.Index(2).Float64(), v.Index(3).Float64())
}

// mediaBox returns the page's MediaBox, following inheritance through the page tree.
func mediaBox(p pdf.Page) model.Rect {
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		if box := v.Key("MediaBox"); !box.IsNull() {
			return rectFromArray(box)
		}
	}
	return model.Rect{}
}
