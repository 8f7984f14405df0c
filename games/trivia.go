package games

// Each round, every player sees the same secret answer (a person, place, or thing)
// and writes the trivia question they think would produce that answer
// Questions go to a resolver, which asks a language model to actually answer each one
// Whoever's question produced an answer closest to the secret wins the round

// Room flow:
// - The first player to join an empty lobby becomes the host
// - The host may set an optional topic before starting; once the game starts, the topic locks
// - Rounds alternate between a timed prompting window and a scoring pause
// - A short intermission shows the round's results before the host advances

// Scoring:
// - An exact match (after normalization) is worth the full 100 points
// - Otherwise the score blends semantic similarity (70%) with lexical closeness (30%)
// - Questions that name the answer outright, or ask the model to reveal it, score zero

// Implementation details:
// - One goroutine per room owns the room state; all mutation happens there
// - The server keeps no timers: clients poll, and an expired deadline advances on the next poll
// - Players reconnect by nickname; their score and submissions survive the drop
// - The full room state is broadcast after every change, so clients never merge deltas
