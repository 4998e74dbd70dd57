package handler

import (
	"math/rand/v2"
	"net/http"

	"github.com/gin-gonic/gin"
)

// displayNames are handed out to clients that have not picked a name.
var displayNames = []string{
	"Augustus", "Marcus Aurelius", "Constantine", "Titus",
	"Zeus", "Poseidon", "Hades", "Ares", "Apollo", "Hermes", "Hephaestus", "Dionysus",
	"Athena", "Artemis", "Hera", "Demeter", "Persephone", "Hercules", "Achilles", "Odysseus",
	"Odin", "Thor", "Loki", "Freya", "Heimdall", "Tyr", "Baldur", "Frigg",
	"Jupiter", "Mars", "Minerva", "Venus", "Mercury", "Neptune", "Pluto", "Gaia", "Vulcan",
	"Ra", "Anubis", "Osiris", "Isis", "Horus", "Set", "Thoth", "Bastet",
}

// GetName returns a random display name. It is a suggestion only; the relay
// never checks the name a client puts in its messages.
func (h *Handler) GetName(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"name": displayNames[rand.IntN(len(displayNames))]})
}
