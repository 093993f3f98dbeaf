package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"fieldmap/internal/graph"

	. "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	. "maragu.dev/gomponents/html"
)

// Render writes the standalone visualizer page for one document model.
func Render(w io.Writer, m *graph.Model) error {
	return VisualizerPage(m).Render(w)
}

// VisualizerPage lays the model out in three columns: response fields,
// their join/transform units, and the tables they draw from. Arrow overlay
// and hover highlighting come from the embedded script; the quick filter
// runs on datastar signals.
func VisualizerPage(m *graph.Model) Node {
	return Doctype(
		HTML(
			Lang("en"),
			Head(
				Meta(Charset("utf-8")),
				Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
				TitleEl(Text(m.Usecase+" | fieldmap")),
				StyleEl(Raw(visualizerCSS)),
				Script(
					Type("module"),
					Src("https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"),
				),
			),
			Body(
				Div(
					Class("container"),
					data.Signals(map[string]any{"q": ""}),
					H1(Text(m.Usecase)),
					summaryLine(m.Summary),
					Div(
						Class("filter"),
						Label(Text("Quick filter")),
						Input(Type("text"), data.Bind("q"), Placeholder("Filter by field name")),
					),
					Div(
						Class("grid"),
						ID("flow-container"),
						SVG(ID("flow-svg"), Attr("xmlns", "http://www.w3.org/2000/svg")),
						fieldColumn(m),
						unitColumn(m),
						tableColumn(m),
					),
					legend(),
				),
				Script(Raw(flowScript)),
			),
		),
	)
}

func summaryLine(summary string) Node {
	if summary == "" {
		return nil
	}
	return P(Class("summary"), Text(summary))
}

func fieldColumn(m *graph.Model) Node {
	fields := m.Flatten()
	cards := make([]Node, 0, len(fields))
	for _, f := range fields {
		cards = append(cards, fieldCard(f))
	}
	if len(cards) == 0 {
		return column("Response Fields", Div(Class("empty"), Text("No response mappings.")))
	}
	return column("Response Fields", Group(cards))
}

func fieldCard(f *graph.FieldNode) Node {
	badges := make([]Node, 0, len(f.Badges))
	for _, b := range f.Badges {
		badges = append(badges, Span(Class("badge"), Text(b)))
	}
	var badgeRow Node
	if len(badges) > 0 {
		badgeRow = Div(Group(badges))
	}
	return Div(
		Class("card response-card"+depthClass(f.Depth)),
		data.Show(containsFieldExpr(f.Name)),
		Attr("data-field", f.Name),
		Attr("data-tables", strings.Join(f.Tables, ",")),
		Attr("data-join-type", string(f.Kind)),
		Div(Class("field-name"), Text(f.Name)),
		badgeRow,
	)
}

func unitColumn(m *graph.Model) Node {
	fields := m.Flatten()
	cards := make([]Node, 0, len(fields))
	for _, f := range fields {
		cards = append(cards, unitCard(f))
	}
	if len(cards) == 0 {
		return column("Joins & Transforms", Div(Class("empty"), Text("No joins or transforms.")))
	}
	return column("Joins & Transforms", Group(cards))
}

func unitCard(f *graph.FieldNode) Node {
	body := make([]Node, 0, len(f.JoinLines)+2)
	for _, line := range f.JoinLines {
		body = append(body, Div(Class("join-line"), Text(line)))
	}
	if len(f.Transforms) > 0 {
		tags := make([]Node, 0, len(f.Transforms))
		for _, tr := range f.Transforms {
			tags = append(tags, Span(Class("badge"), Text(tr)))
		}
		body = append(body, Div(Class("transform-line"), Text("Transforms:")), Div(Group(tags)))
	}
	if len(body) == 0 {
		body = append(body, Div(Class("empty"), Text("No join/transform.")))
	}
	return Div(
		Class("card join-card"+depthClass(f.Depth)),
		data.Show(containsFieldExpr(f.Name)),
		Attr("data-field", f.Name),
		Div(Class("field-name small"), Text(f.Name)),
		Group(body),
	)
}

func tableColumn(m *graph.Model) Node {
	if len(m.Tables) == 0 {
		return column("Tables", Div(Class("empty"), Text("No tables imported.")))
	}
	cards := make([]Node, 0, len(m.Tables))
	for i := range m.Tables {
		t := &m.Tables[i]
		cards = append(cards, Div(
			Class("card table-card"),
			Attr("data-table", t.Name),
			Div(Class("field-name"), Text(t.Display())),
			Div(Class("join-line"), Text(referencedBy(t.RefCount))),
		))
	}
	return column("Tables", Group(cards))
}

func column(title string, content Node) Node {
	return Div(Class("column"), H2(Text(title)), content)
}

func legend() Node {
	items := []struct {
		label string
		color string
	}{
		{"Simple", "#9ca3af"},
		{"JOIN", "#d4a017"},
		{"JOIN Chain", "#3b82f6"},
		{"Aggregate", "#8b5cf6"},
	}
	nodes := make([]Node, 0, len(items))
	for _, item := range items {
		nodes = append(nodes, Div(
			Class("legend-item"),
			Div(Class("legend-line"), Style("background:"+item.color)),
			Text(item.label),
		))
	}
	return Div(Class("legend"), Group(nodes))
}

func referencedBy(count int) string {
	if count == 1 {
		return "Referenced by 1 field"
	}
	return fmt.Sprintf("Referenced by %d fields", count)
}

func depthClass(depth int) string {
	if depth == 0 {
		return ""
	}
	if depth > 4 {
		depth = 4
	}
	return fmt.Sprintf(" depth-%d", depth)
}

func containsFieldExpr(value string) string {
	lower := strings.ToLower(value)
	return "$q === '' || " + strconv.Quote(lower) + ".includes($q.toLowerCase())"
}

const visualizerCSS = `
body { font-family: 'Inter', 'Helvetica Neue', Arial, sans-serif; background: #f5f7fa; color: #1f2a37; margin: 0; padding: 24px; }
.container { max-width: 1200px; margin: 0 auto; }
h1 { margin-bottom: 8px; font-size: 1.8rem; }
.summary { margin-top: 0; color: #556070; }
.filter { margin: 12px 0; }
.filter label { margin-right: 8px; font-size: 0.9rem; color: #556070; }
.filter input { padding: 6px 10px; border: 1px solid #d1d5db; border-radius: 6px; }
.grid { display: grid; grid-template-columns: repeat(3, 1fr); gap: 16px; align-items: start; }
.column h2 { font-size: 1.1rem; margin-bottom: 12px; }
.card { border-radius: 12px; padding: 12px 16px; margin-bottom: 12px; box-shadow: 0 4px 12px rgba(15, 23, 42, 0.08); transition: box-shadow 0.2s ease, transform 0.15s ease; }
.card.highlighted { box-shadow: 0 0 16px rgba(59,130,246,0.4); transform: scale(1.02); }
.response-card { background: #e8f4fd; }
.join-card { background: #fff8e1; }
.table-card { background: #f0faf0; }
.badge { display: inline-block; background: #6c757d; color: #fff; border-radius: 999px; font-size: 0.72rem; padding: 2px 8px; margin-right: 4px; }
.field-name { font-weight: 600; margin-bottom: 6px; }
.field-name.small { font-weight: 500; font-size: 0.9rem; color: #394150; }
.join-line, .transform-line { font-size: 0.9rem; margin-top: 4px; }
.empty { color: #6b7280; font-size: 0.9rem; }
.depth-1 { margin-left: 12px; }
.depth-2 { margin-left: 24px; }
.depth-3 { margin-left: 36px; }
.depth-4 { margin-left: 48px; }
#flow-container { position: relative; }
#flow-svg { position: absolute; top: 0; left: 0; width: 100%; height: 100%; pointer-events: none; z-index: 10; }
.arrow-simple { stroke: #9ca3af; }
.arrow-join { stroke: #d4a017; }
.arrow-join-chain { stroke: #3b82f6; }
.arrow-aggregate { stroke: #8b5cf6; }
.legend { display: flex; gap: 16px; flex-wrap: wrap; margin-top: 20px; padding: 12px 16px; background: #fff; border-radius: 8px; box-shadow: 0 2px 6px rgba(0,0,0,0.06); }
.legend-item { display: flex; align-items: center; gap: 6px; font-size: 0.85rem; }
.legend-line { width: 28px; height: 3px; border-radius: 2px; }
`

const flowScript = `
(function() {
  function drawFlows() {
    var container = document.getElementById('flow-container');
    var svg = document.getElementById('flow-svg');
    if (!container || !svg) return;
    svg.innerHTML = '';
    var containerRect = container.getBoundingClientRect();
    document.querySelectorAll('.response-card[data-tables]').forEach(function(card) {
      if (card.offsetParent === null) return;
      var tables = card.dataset.tables.split(',').filter(function(t) { return t.length > 0; });
      var joinType = card.dataset.joinType || 'simple';
      var cardRect = card.getBoundingClientRect();
      tables.forEach(function(tableName) {
        var tableCard = document.querySelector('.table-card[data-table="' + tableName + '"]');
        if (!tableCard) return;
        var tableRect = tableCard.getBoundingClientRect();
        var x1 = cardRect.right - containerRect.left;
        var y1 = cardRect.top + cardRect.height / 2 - containerRect.top;
        var x2 = tableRect.left - containerRect.left;
        var y2 = tableRect.top + tableRect.height / 2 - containerRect.top;
        var midX = (x1 + x2) / 2;
        var path = document.createElementNS('http://www.w3.org/2000/svg', 'path');
        path.setAttribute('d', 'M ' + x1 + ' ' + y1 + ' C ' + midX + ' ' + y1 + ', ' + midX + ' ' + y2 + ', ' + x2 + ' ' + y2);
        path.setAttribute('fill', 'none');
        path.setAttribute('stroke-width', '2');
        path.setAttribute('class', 'arrow-' + joinType);
        path.setAttribute('data-field', card.dataset.field);
        path.setAttribute('data-table', tableName);
        var colors = { 'simple': '#9ca3af', 'join': '#d4a017', 'join-chain': '#3b82f6', 'aggregate': '#8b5cf6' };
        var color = colors[joinType] || '#9ca3af';
        var markerId = 'arrow-' + joinType;
        var defs = svg.querySelector('defs');
        if (!defs) { defs = document.createElementNS('http://www.w3.org/2000/svg', 'defs'); svg.insertBefore(defs, svg.firstChild); }
        if (!defs.querySelector('#' + markerId)) {
          var marker = document.createElementNS('http://www.w3.org/2000/svg', 'marker');
          marker.setAttribute('id', markerId);
          marker.setAttribute('viewBox', '0 0 10 10');
          marker.setAttribute('refX', '9');
          marker.setAttribute('refY', '5');
          marker.setAttribute('markerWidth', '6');
          marker.setAttribute('markerHeight', '6');
          marker.setAttribute('orient', 'auto-start-reverse');
          var markerPath = document.createElementNS('http://www.w3.org/2000/svg', 'path');
          markerPath.setAttribute('d', 'M 0 0 L 10 5 L 0 10 z');
          markerPath.setAttribute('fill', color);
          marker.appendChild(markerPath);
          defs.appendChild(marker);
        }
        path.setAttribute('marker-end', 'url(#' + markerId + ')');
        svg.appendChild(path);
      });
    });
  }
  function setupHover() {
    document.querySelectorAll('.response-card[data-field]').forEach(function(card) {
      card.addEventListener('mouseenter', function() {
        var field = card.dataset.field;
        var tables = (card.dataset.tables || '').split(',').filter(function(t) { return t.length > 0; });
        card.classList.add('highlighted');
        document.querySelectorAll('.join-card[data-field="' + field + '"]').forEach(function(c) { c.classList.add('highlighted'); });
        tables.forEach(function(t) {
          var tc = document.querySelector('.table-card[data-table="' + t + '"]');
          if (tc) tc.classList.add('highlighted');
        });
        document.querySelectorAll('#flow-svg path[data-field="' + field + '"]').forEach(function(p) {
          p.setAttribute('stroke-width', '4');
          p.style.filter = 'drop-shadow(0 0 4px currentColor)';
        });
      });
      card.addEventListener('mouseleave', function() {
        document.querySelectorAll('.card').forEach(function(c) { c.classList.remove('highlighted'); });
        document.querySelectorAll('#flow-svg path').forEach(function(p) { p.setAttribute('stroke-width', '2'); p.style.filter = ''; });
      });
    });
  }
  window.addEventListener('load', function() { drawFlows(); setupHover(); });
  window.addEventListener('resize', drawFlows);
  window.addEventListener('input', function() { requestAnimationFrame(drawFlows); });
})();
`
