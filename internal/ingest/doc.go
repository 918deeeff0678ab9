// Package ingest harvests content ideas from each client's configured
// sources into the idea backlog. Web sources contribute their top headings
// (or Open Graph metadata); when Facebook credentials are configured, the
// client's own page posts are mined as well. Harvesting is designed to run
// on a schedule: the same page harvested twice contributes duplicate
// headlines only once per pass, and downstream drafting consumes the
// backlog in arrival order.
package ingest
