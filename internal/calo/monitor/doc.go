// Package monitor renders debug views of a built tower grid: a PNG
// heatmap with gonum/plot and an interactive HTML chart with go-echarts.
package monitor
