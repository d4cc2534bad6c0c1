// Package engine implements the production coordination core: demand
// aggregation over pending sales-order lines, material requirement
// calculation against bills of materials and raw stock, the work-order
// lifecycle state machine, and the merge resolver that folds demand
// batches into open work orders.
package engine
